package stt

import (
	"bytes"
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/w2kr1stn/babel-tower/internal/config"
	"github.com/w2kr1stn/babel-tower/internal/openaicompat"
)

type remoteTranscriber struct {
	client   *openai.Client
	url      string
	model    string
	language string
	log      zerolog.Logger
}

// NewRemote creates a transcriber for an OpenAI-compatible
// /v1/audio/transcriptions endpoint
func NewRemote(cfg config.STTConfig, log zerolog.Logger) Transcriber {
	return &remoteTranscriber{
		client:   openaicompat.NewClient(cfg.URL, "", config.Seconds(cfg.Timeout)),
		url:      cfg.URL,
		model:    cfg.Model,
		language: cfg.Language,
		log:      log,
	}
}

func (r *remoteTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	req := openai.AudioRequest{
		Model:    r.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: r.language,
	}

	r.log.Debug().Int("bytes", len(wav)).Str("model", r.model).Msg("Sending audio to STT")

	resp, err := r.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", &Error{Msg: openaicompat.Describe("STT", r.url, err), Err: err}
	}

	return strings.TrimSpace(resp.Text), nil
}
