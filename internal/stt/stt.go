// Package stt turns recorded WAV clips into text.
package stt

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/config"
)

// Transcriber interface for speech-to-text
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Error is a transcription failure. Its message is shown to the user.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Err }

// New creates the transcriber selected by cfg.Backend
func New(cfg config.STTConfig, log zerolog.Logger) (Transcriber, error) {
	switch cfg.Backend {
	case "", config.BackendRemote:
		return NewRemote(cfg, log), nil
	case config.BackendLocal:
		return NewLocal(cfg, log)
	default:
		return nil, fmt.Errorf("unknown stt backend: %s", cfg.Backend)
	}
}
