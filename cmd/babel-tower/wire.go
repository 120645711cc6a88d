package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/config"
	"github.com/w2kr1stn/babel-tower/internal/logging"
	"github.com/w2kr1stn/babel-tower/internal/output"
	"github.com/w2kr1stn/babel-tower/internal/permissions"
	"github.com/w2kr1stn/babel-tower/internal/pipeline"
	"github.com/w2kr1stn/babel-tower/internal/processing"
	"github.com/w2kr1stn/babel-tower/internal/stt"
	"github.com/w2kr1stn/babel-tower/internal/tts"
)

// env is the configuration and shared services of one command
type env struct {
	cfg      *config.Config
	log      zerolog.Logger
	notifier output.Notifier

	closers []io.Closer
}

// loadEnv reads the config and builds the logger. --log-level wins over
// the configured level.
func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}

	return &env{
		cfg:      cfg,
		log:      logging.NewWithLevel(level),
		notifier: output.NewNotifier(),
	}, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.log.Warn().Err(err).Msg("Cleanup failed")
		}
	}
}

// openDevice checks microphone access and initializes PortAudio
func (e *env) openDevice() (audio.Device, error) {
	if err := permissions.EnsureMicrophone(); err != nil {
		return nil, err
	}
	device, err := audio.NewPortAudio()
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, device)
	return device, nil
}

// newPipeline wires capture, transcription, processing and output. With
// mic false the pipeline can only process files.
func (e *env) newPipeline(mic bool, status pipeline.StatusUpdater) (*pipeline.Pipeline, error) {
	var recorder pipeline.Recorder
	if mic {
		device, err := e.openDevice()
		if err != nil {
			return nil, err
		}
		recorder = audio.NewCapturer(audio.CapturerConfig{Device: device, Logger: e.log})
	}

	transcriber, err := stt.New(e.cfg.STT, e.log)
	if err != nil {
		return nil, err
	}
	if c, ok := transcriber.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}

	var reviewer output.Reviewer
	if e.cfg.Processing.ReviewEnabled {
		reviewer = output.NewRofiReviewer(e.log)
	}

	return pipeline.New(pipeline.Config{
		Recorder:      recorder,
		Transcriber:   transcriber,
		Processor:     processing.New(e.cfg.LLM, e.cfg.Processing, e.log),
		Clipboard:     output.NewClipboard(),
		Notifier:      e.notifier,
		Reviewer:      reviewer,
		Settings:      e.cfg.Audio.CaptureSettings(),
		Logger:        e.log,
		StatusUpdater: status,
	}), nil
}

// speaker returns the TTS client, or nil when speech output is disabled
func (e *env) speaker() tts.Speaker {
	if !e.cfg.TTS.Enabled {
		return nil
	}
	return tts.New(e.cfg.TTS, e.log)
}
