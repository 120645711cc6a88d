package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func withModelServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	orig := modelBaseURL
	modelBaseURL = srv.URL
	t.Cleanup(func() { modelBaseURL = orig })
}

func TestEnsureModelDownloads(t *testing.T) {
	var requested string
	withModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte("fake model weights"))
	})

	dir := t.TempDir()
	path, err := ensureModel(context.Background(), dir, "base", zerolog.Nop())
	if err != nil {
		t.Fatalf("ensureModel: %v", err)
	}

	if requested != "/ggml-base.bin" {
		t.Errorf("unexpected request path %s", requested)
	}
	if path != filepath.Join(dir, "ggml-base.bin") {
		t.Errorf("unexpected model path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "fake model weights" {
		t.Fatalf("model not written: %q %v", data, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be removed")
	}
}

func TestEnsureModelSkipsExisting(t *testing.T) {
	withModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("existing model should not be downloaded")
	})

	dir := t.TempDir()
	existing := filepath.Join(dir, "ggml-small.bin")
	if err := os.WriteFile(existing, []byte("cached"), 0644); err != nil {
		t.Fatal(err)
	}

	path, err := ensureModel(context.Background(), dir, "small", zerolog.Nop())
	if err != nil {
		t.Fatalf("ensureModel: %v", err)
	}
	if path != existing {
		t.Errorf("expected %s, got %s", existing, path)
	}
}

func TestDownloadModelErrors(t *testing.T) {
	withModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	dir := t.TempDir()

	if err := downloadModel(context.Background(), "huge-v9", filepath.Join(dir, "x.bin"), zerolog.Nop()); err == nil {
		t.Error("expected error for unknown model")
	}

	dest := filepath.Join(dir, "ggml-tiny.bin")
	if err := downloadModel(context.Background(), "tiny", dest, zerolog.Nop()); err == nil {
		t.Error("expected error for HTTP 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("failed download must not leave a model file")
	}
}
