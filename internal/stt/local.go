//go:build whisper

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/config"
)

type localTranscriber struct {
	model    whisper.Model
	language string
	threads  int
	log      zerolog.Logger

	mu sync.Mutex
}

// NewLocal creates a whisper.cpp transcriber, downloading the model on first use
func NewLocal(cfg config.STTConfig, log zerolog.Logger) (Transcriber, error) {
	path, err := ensureModel(context.Background(), config.ModelsPath(), cfg.LocalModel, log)
	if err != nil {
		return nil, err
	}

	// Load model using official bindings
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	log.Info().Str("model", cfg.LocalModel).Str("path", path).Msg("Whisper model loaded")

	return &localTranscriber{
		model:    model,
		language: cfg.Language,
		threads:  cfg.Threads,
		log:      log,
	}, nil
}

func (l *localTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", &Error{Msg: fmt.Sprintf("STT could not read audio: %v", err), Err: err}
	}
	if clip.SampleRate != whisper.SampleRate || clip.Channels != 1 {
		err := fmt.Errorf("expected %d Hz mono, got %d Hz x%d", whisper.SampleRate, clip.SampleRate, clip.Channels)
		return "", &Error{Msg: "STT " + err.Error(), Err: err}
	}

	samples := make([]float32, len(clip.Samples))
	for i, v := range clip.Samples {
		samples[i] = float32(v) / 32768.0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := l.model.NewContext()
	if err != nil {
		return "", &Error{Msg: "STT failed to create context", Err: err}
	}

	if l.threads > 0 {
		wctx.SetThreads(uint(l.threads))
	}
	if l.language != "auto" && l.language != "" {
		if err := wctx.SetLanguage(l.language); err != nil {
			return "", &Error{Msg: fmt.Sprintf("STT language %q not supported", l.language), Err: err}
		}
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", &Error{Msg: fmt.Sprintf("STT inference failed: %v", err), Err: err}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", &Error{Msg: fmt.Sprintf("STT inference failed: %v", err), Err: err}
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}

	l.log.Debug().Int("segments", len(parts)).Msg("Local transcription finished")

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Close releases the model
func (l *localTranscriber) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil {
		err := l.model.Close()
		l.model = nil
		return err
	}
	return nil
}
