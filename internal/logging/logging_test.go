package logging

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNewWithLevelWritesLogFile(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG paths are linux only")
	}
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	logger := NewWithLevel("debug")
	logger.Debug().Msg("hello")

	want := filepath.Join(dir, "babel-tower", "babel-tower.log")
	if got := LogPath(); got != want {
		t.Fatalf("expected log path %s, got %s", want, got)
	}

	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", logger.GetLevel())
	}
}
