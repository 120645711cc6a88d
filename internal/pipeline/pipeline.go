package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/output"
	"github.com/w2kr1stn/babel-tower/internal/processing"
	"github.com/w2kr1stn/babel-tower/internal/stt"
)

const (
	msgRecording    = "Aufnahme gestartet..."
	msgTranscribing = "Transkribiere..."
	msgProcessing   = "Verarbeite..."
	msgNoSpeech     = "Keine Sprache erkannt"
	msgLLMOffline   = "M5 offline — Roh-Transkript verwendet"

	// resultPreview is how much of the result the final notification shows
	resultPreview = 100
)

// ErrBusy is returned when a run is already in progress
var ErrBusy = errors.New("pipeline is already running")

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetListening()
	SetTranscribing()
	SetProcessing()
	SetError()
}

// Recorder captures one utterance asynchronously
type Recorder interface {
	Start(ctx context.Context, s audio.Settings) <-chan audio.Result
}

// TextProcessor rewrites a transcript
type TextProcessor interface {
	Process(ctx context.Context, transcript string, opts processing.Options) (string, error)
}

type Config struct {
	Recorder      Recorder
	Transcriber   stt.Transcriber
	Processor     TextProcessor
	Clipboard     output.Clipboard
	Notifier      output.Notifier
	Reviewer      output.Reviewer // Optional - nil skips review
	Settings      audio.Settings
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// Options configure a single run
type Options struct {
	// Mode forces a processing mode. Empty selects automatically.
	Mode string
	// DefaultMode replaces the configured default for automatic selection.
	DefaultMode string
	// Context is passed to the processor along with the transcript.
	Context string
	// Clipboard copies the result to the clipboard.
	Clipboard bool
}

type Pipeline struct {
	recorder  Recorder
	stt       stt.Transcriber
	processor TextProcessor
	clipboard output.Clipboard
	notifier  output.Notifier
	reviewer  output.Reviewer
	settings  audio.Settings
	log       zerolog.Logger
	status    StatusUpdater

	mu sync.Mutex
}

func New(cfg Config) *Pipeline {
	return &Pipeline{
		recorder:  cfg.Recorder,
		stt:       cfg.Transcriber,
		processor: cfg.Processor,
		clipboard: cfg.Clipboard,
		notifier:  cfg.Notifier,
		reviewer:  cfg.Reviewer,
		settings:  cfg.Settings,
		log:       cfg.Logger,
		status:    cfg.StatusUpdater,
	}
}

// Run records speech and delivers the processed text.
//
// Cancelling ctx stops the recording; whatever speech was captured up to
// then is still transcribed and delivered. audio.ErrNoSpeech is returned
// unchanged so the caller decides how to report it. Transcription failures
// are reported to the user and returned as an "[STT-Fehler: ...]" result
// with a nil error.
func (p *Pipeline) Run(ctx context.Context, opts Options) (string, error) {
	if !p.mu.TryLock() {
		return "", ErrBusy
	}
	defer p.mu.Unlock()

	p.setStatus(StatusUpdater.SetListening)
	p.notify(msgRecording, output.UrgencyNormal)

	res := <-p.recorder.Start(ctx, p.settings)
	if res.Err != nil {
		if errors.Is(res.Err, audio.ErrNoSpeech) {
			p.setStatus(StatusUpdater.SetIdle)
		} else {
			p.setStatus(StatusUpdater.SetError)
		}
		return "", res.Err
	}

	p.log.Info().
		Stringer("reason", res.Clip.Reason).
		Dur("duration", res.Clip.Duration()).
		Msg("Recording finished")

	wav, err := res.Clip.WAV()
	if err != nil {
		p.setStatus(StatusUpdater.SetError)
		return "", fmt.Errorf("failed to encode recording: %w", err)
	}

	p.setStatus(StatusUpdater.SetTranscribing)
	p.notify(msgTranscribing, output.UrgencyNormal)

	// ctx only bounds the recording. A clip cut short by cancellation is
	// still delivered; the service clients carry their own timeouts.
	return p.deliver(context.WithoutCancel(ctx), wav, opts, true)
}

// ProcessFile runs an existing WAV file through transcription and processing
func (p *Pipeline) ProcessFile(ctx context.Context, path string, opts Options) (string, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if !p.mu.TryLock() {
		return "", ErrBusy
	}
	defer p.mu.Unlock()

	p.setStatus(StatusUpdater.SetTranscribing)
	return p.deliver(ctx, wav, opts, false)
}

func (p *Pipeline) deliver(ctx context.Context, wav []byte, opts Options, progress bool) (string, error) {
	transcript, err := p.stt.Transcribe(ctx, wav)
	if err != nil {
		p.log.Error().Err(err).Msg("Transcription failed")
		p.notify("STT-Fehler: "+err.Error(), output.UrgencyCritical)
		p.setStatus(StatusUpdater.SetError)
		return "[STT-Fehler: " + err.Error() + "]", nil
	}

	if transcript == "" {
		p.notify(msgNoSpeech, output.UrgencyLow)
		p.setStatus(StatusUpdater.SetIdle)
		return "", nil
	}

	p.log.Debug().Str("transcript", transcript).Msg("Transcribed")

	p.setStatus(StatusUpdater.SetProcessing)
	if progress {
		p.notify(msgProcessing, output.UrgencyNormal)
	}

	result, err := p.processor.Process(ctx, transcript, processing.Options{
		Mode:        opts.Mode,
		DefaultMode: opts.DefaultMode,
		Context:     opts.Context,
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("Processing failed, using raw transcript")
		p.notify(msgLLMOffline, output.UrgencyNormal)
		result = transcript
	}

	if p.reviewer != nil {
		edited, ok := p.reviewer.Review(ctx, result)
		if !ok {
			p.log.Info().Msg("Result discarded in review")
			p.setStatus(StatusUpdater.SetIdle)
			return "", nil
		}
		result = edited
	}

	if opts.Clipboard {
		if err := p.clipboard.Copy(result); err != nil {
			p.log.Warn().Err(err).Msg("Failed to copy result to clipboard")
		}
	}

	p.notify(output.Truncate(result, resultPreview), output.UrgencyNormal)
	p.setStatus(StatusUpdater.SetIdle)

	p.log.Info().Int("chars", len(result)).Msg("Delivered")
	return result, nil
}

func (p *Pipeline) notify(body string, urgency output.Urgency) {
	if err := p.notifier.Notify(body, urgency); err != nil {
		p.log.Debug().Err(err).Stringer("urgency", urgency).Msg("Notification failed")
	}
}

func (p *Pipeline) setStatus(update func(StatusUpdater)) {
	if p.status != nil {
		update(p.status)
	}
}
