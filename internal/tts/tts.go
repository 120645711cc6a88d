// Package tts speaks short messages through an OpenAI-compatible speech
// endpoint.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/config"
	"github.com/w2kr1stn/babel-tower/internal/openaicompat"
)

const speechModel = "tts-1"

// Error is a synthesis or playback failure.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Err }

// Speaker reads text aloud
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Client struct {
	client *openai.Client
	url    string
	voice  string
	player Player
	log    zerolog.Logger
}

// New creates a speech client that plays through the default audio output
func New(cfg config.TTSConfig, log zerolog.Logger) *Client {
	return NewWithPlayer(cfg, NewPlayer(log), log)
}

func NewWithPlayer(cfg config.TTSConfig, player Player, log zerolog.Logger) *Client {
	return &Client{
		client: openaicompat.NewClient(cfg.URL, "", config.Seconds(cfg.Timeout)),
		url:    cfg.URL,
		voice:  cfg.Voice,
		player: player,
		log:    log,
	}
}

// Synthesize returns text rendered as a WAV file
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          speechModel,
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, &Error{Msg: openaicompat.Describe("TTS", c.url, err), Err: err}
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("TTS response could not be read: %v", err), Err: err}
	}
	return data, nil
}

// Speak synthesizes text and blocks until playback finished or ctx is done
func (c *Client) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	data, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return &Error{Msg: fmt.Sprintf("TTS returned invalid audio: %v", err), Err: err}
	}

	c.log.Debug().Dur("duration", clip.Duration()).Msg("Playing speech")

	if err := c.player.Play(ctx, clip); err != nil && !errors.Is(err, context.Canceled) {
		return &Error{Msg: fmt.Sprintf("TTS playback failed: %v", err), Err: err}
	}
	return nil
}
