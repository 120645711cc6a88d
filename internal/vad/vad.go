// Package vad turns per-frame speech probabilities into utterance boundary
// events.
//
// A Detector is stateful and belongs to a single capture session. It is fed
// normalized float32 frames in arrival order and reports at most one event per
// frame: the start of speech, the end of speech, or nothing.
package vad

import (
	"errors"
	"fmt"
)

// Event is the result of classifying a single frame.
type Event int

const (
	// EventNone means the frame did not change the speech state.
	EventNone Event = iota
	// EventStart means speech began on this frame.
	EventStart
	// EventEnd means enough trailing silence followed speech.
	EventEnd
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Config holds the construction parameters of a Detector.
type Config struct {
	// Threshold is the speech probability at or above which a frame counts
	// as speech. Range (0, 1). Typical: 0.5.
	Threshold float64

	// SampleRate of the frames passed to Classify. 8000 or 16000.
	SampleRate int

	// MinSilenceDurationMs is how long probability must stay below the
	// release threshold before an End event fires.
	MinSilenceDurationMs int
}

// Detector classifies normalized frames. It is not safe for concurrent use.
type Detector interface {
	Classify(frame []float32) (Event, error)
}

// Factory builds a fresh Detector for one session.
type Factory func(cfg Config) (Detector, error)

// Scorer returns the speech probability of a frame in [0, 1].
type Scorer interface {
	Score(frame []float32) (float64, error)
}

// releaseOffset is subtracted from Threshold to get the probability below
// which a frame counts as silence while speech is active.
const releaseOffset = 0.15

var (
	ErrEmptyFrame        = errors.New("vad: empty frame")
	errInvalidThreshold  = errors.New("vad: threshold must be in (0, 1)")
	errInvalidSampleRate = errors.New("vad: sample rate must be 8000 or 16000")
	errInvalidSilence    = errors.New("vad: min silence duration must not be negative")
)

// Validate reports whether cfg can build a Detector.
func (c Config) Validate() error {
	var errs []error
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, errInvalidThreshold)
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		errs = append(errs, errInvalidSampleRate)
	}
	if c.MinSilenceDurationMs < 0 {
		errs = append(errs, errInvalidSilence)
	}
	return errors.Join(errs...)
}

// New returns the built-in energy-based Detector.
func New(cfg Config) (Detector, error) {
	return NewWithScorer(cfg, NewEnergyScorer())
}

// NewWithScorer wraps scorer in the start/end state machine.
func NewWithScorer(cfg Config, scorer Scorer) (Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, errors.New("vad: nil scorer")
	}
	return &iterator{
		scorer:            scorer,
		threshold:         cfg.Threshold,
		minSilenceSamples: cfg.SampleRate * cfg.MinSilenceDurationMs / 1000,
	}, nil
}

type iterator struct {
	scorer            Scorer
	threshold         float64
	minSilenceSamples int

	triggered     bool
	currentSample int
	// tempEnd is the sample position where the current silence run began,
	// 0 when no silence run is pending.
	tempEnd int
}

func (it *iterator) Classify(frame []float32) (Event, error) {
	if len(frame) == 0 {
		return EventNone, ErrEmptyFrame
	}

	p, err := it.scorer.Score(frame)
	if err != nil {
		return EventNone, fmt.Errorf("vad: score frame: %w", err)
	}
	it.currentSample += len(frame)

	if p >= it.threshold && it.tempEnd != 0 {
		it.tempEnd = 0
	}

	if p >= it.threshold && !it.triggered {
		it.triggered = true
		return EventStart, nil
	}

	if p < it.threshold-releaseOffset && it.triggered {
		if it.tempEnd == 0 {
			it.tempEnd = it.currentSample
		}
		if it.currentSample-it.tempEnd < it.minSilenceSamples {
			return EventNone, nil
		}
		it.tempEnd = 0
		it.triggered = false
		return EventEnd, nil
	}

	return EventNone, nil
}
