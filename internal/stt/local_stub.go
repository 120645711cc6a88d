//go:build !whisper

package stt

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/config"
)

// NewLocal is unavailable without whisper.cpp. Build with -tags whisper and
// libwhisper on the library path to enable it.
func NewLocal(cfg config.STTConfig, log zerolog.Logger) (Transcriber, error) {
	return nil, errors.New("local transcription requires a build with -tags whisper")
}
