// Package daemon listens continuously, running the pipeline once per
// utterance until stopped.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/output"
	"github.com/w2kr1stn/babel-tower/internal/pipeline"
)

const (
	msgStarted = "Daemon gestartet — warte auf Sprache..."
	msgStopped = "Daemon gestoppt"

	errorPause = time.Second
)

// Runner runs one pipeline pass
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (string, error)
}

type Config struct {
	Pipeline Runner
	Notifier output.Notifier
	Logger   zerolog.Logger
	// Mode is the default processing mode of the session. Empty uses the
	// configured default.
	Mode string
	// ErrorPause is the wait after a failed pass. Defaults to one second.
	ErrorPause time.Duration
}

type Daemon struct {
	pipeline   Runner
	notifier   output.Notifier
	log        zerolog.Logger
	errorPause time.Duration

	mu         sync.Mutex
	mode       string
	paused     bool
	resume     chan struct{}
	cancelPass context.CancelFunc
}

func New(cfg Config) *Daemon {
	pause := cfg.ErrorPause
	if pause <= 0 {
		pause = errorPause
	}
	return &Daemon{
		pipeline:   cfg.Pipeline,
		notifier:   cfg.Notifier,
		log:        cfg.Logger,
		errorPause: pause,
		mode:       cfg.Mode,
		resume:     make(chan struct{}),
	}
}

// Run listens until ctx is done
func (d *Daemon) Run(ctx context.Context) error {
	d.notify(msgStarted, output.UrgencyLow)
	d.log.Info().Str("mode", d.Mode()).Msg("Daemon started")

	for ctx.Err() == nil {
		if !d.waitUntilResumed(ctx) {
			break
		}

		result, err := d.runPass(ctx)
		switch {
		case err == nil:
			if result != "" {
				d.log.Debug().Int("chars", len(result)).Msg("Utterance delivered")
			}
		case errors.Is(err, audio.ErrNoSpeech):
			continue
		case ctx.Err() != nil || d.IsPaused():
			// Interrupted by shutdown or pause
		default:
			d.log.Error().Err(err).Msg("Pipeline failed")
			d.notify("Fehler: "+err.Error(), output.UrgencyCritical)
			sleep(ctx, d.errorPause)
		}
	}

	d.notify(msgStopped, output.UrgencyLow)
	d.log.Info().Msg("Daemon stopped")
	return nil
}

func (d *Daemon) runPass(ctx context.Context) (string, error) {
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	d.cancelPass = cancel
	if d.paused {
		cancel()
	}
	mode := d.mode
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.cancelPass = nil
		d.mu.Unlock()
	}()

	return d.pipeline.Run(passCtx, pipeline.Options{DefaultMode: mode, Clipboard: true})
}

// SetMode changes the default processing mode for later passes
func (d *Daemon) SetMode(mode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

func (d *Daemon) Mode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Pause stops listening. A recording in progress is cut short.
func (d *Daemon) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	if d.cancelPass != nil {
		d.cancelPass()
	}
}

// Resume continues listening
func (d *Daemon) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		d.paused = false
		close(d.resume)
		d.resume = make(chan struct{})
	}
}

func (d *Daemon) IsPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// waitUntilResumed blocks while paused. It returns false if ctx ended first.
func (d *Daemon) waitUntilResumed(ctx context.Context) bool {
	for {
		d.mu.Lock()
		paused, resume := d.paused, d.resume
		d.mu.Unlock()

		if !paused {
			return true
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return false
		}
	}
}

func (d *Daemon) notify(body string, urgency output.Urgency) {
	if err := d.notifier.Notify(body, urgency); err != nil {
		d.log.Debug().Err(err).Msg("Notification failed")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
