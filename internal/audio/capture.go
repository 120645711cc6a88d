package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/vad"
)

const (
	// DefaultFrameSize is the block size read from the device and fed to
	// the detector, 32ms at 16kHz.
	DefaultFrameSize   = 512
	DefaultSampleRate  = 16000
	DefaultMaxDuration = 60 * time.Second
)

// ErrNoSpeech is returned by Capture when no speech started before the
// session ended. It is an expected outcome, not a failure of the device.
var ErrNoSpeech = errors.New("no speech detected")

// DeviceError reports a failure to open or read the input device.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("audio device %s: %v", e.Op, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

// DetectorError reports a failure to build or run the voice detector.
type DetectorError struct {
	Op  string
	Err error
}

func (e *DetectorError) Error() string { return fmt.Sprintf("voice detector %s: %v", e.Op, e.Err) }
func (e *DetectorError) Unwrap() error { return e.Err }

// StopReason tells why a successful capture stopped.
type StopReason int

const (
	// StopNone marks a clip that was not recorded, e.g. one read from a file.
	StopNone StopReason = iota
	StopEnded
	StopMaxDuration
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopEnded:
		return "ended"
	case StopMaxDuration:
		return "max_duration"
	case StopCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Settings are read once per capture and never mutated by it.
type Settings struct {
	DeviceID     string
	SampleRate   int
	Channels     int
	FrameSize    int
	VADThreshold float64
	MinSilence   time.Duration
	MaxDuration  time.Duration
}

// DefaultSettings mirrors the defaults of the config package.
func DefaultSettings() Settings {
	return Settings{
		SampleRate:   DefaultSampleRate,
		Channels:     1,
		FrameSize:    DefaultFrameSize,
		VADThreshold: 0.5,
		MinSilence:   20 * time.Second,
		MaxDuration:  DefaultMaxDuration,
	}
}

func (s Settings) Validate() error {
	var errs []error
	if s.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", s.SampleRate))
	}
	if s.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channel count must be positive, got %d", s.Channels))
	}
	if s.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", s.FrameSize))
	}
	if s.VADThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad threshold must be positive, got %g", s.VADThreshold))
	}
	if s.MinSilence <= 0 {
		errs = append(errs, fmt.Errorf("min silence must be positive, got %s", s.MinSilence))
	}
	if s.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max duration must be positive, got %s", s.MaxDuration))
	}
	return errors.Join(errs...)
}

// MaxFrames is floor(maxDuration * sampleRate / frameSize).
func (s Settings) MaxFrames() int {
	return int(int64(s.MaxDuration) * int64(s.SampleRate) / (int64(time.Second) * int64(s.FrameSize)))
}

// Result carries the outcome of an asynchronous capture.
type Result struct {
	Clip *Clip
	Err  error
}

// CapturerConfig wires a Capturer to its collaborators.
type CapturerConfig struct {
	Device Device
	// NewDetector builds one detector per session. Defaults to vad.New.
	NewDetector vad.Factory
	Logger      zerolog.Logger
}

// Capturer records one utterance per call, gated by voice activity.
type Capturer struct {
	device      Device
	newDetector vad.Factory
	log         zerolog.Logger
}

func NewCapturer(cfg CapturerConfig) *Capturer {
	newDetector := cfg.NewDetector
	if newDetector == nil {
		newDetector = vad.New
	}
	return &Capturer{
		device:      cfg.Device,
		newDetector: newDetector,
		log:         cfg.Logger,
	}
}

// Start runs Capture on its own goroutine. The returned channel receives
// exactly one Result and is then closed.
func (c *Capturer) Start(ctx context.Context, s Settings) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		clip, err := c.Capture(ctx, s)
		out <- Result{Clip: clip, Err: err}
	}()
	return out
}

// session is the mutable state of a single Capture call.
type session struct {
	frames   [][]int16
	started  bool
	ended    bool
	read     int
	overflow int
}

// Capture blocks until speech ends, MaxDuration elapses or ctx is done.
//
// Speech that started is always returned, even when the session was cut
// short by MaxDuration or ctx. ErrNoSpeech is returned when the detector
// never reported a start. Device and detector failures are returned as
// *DeviceError and *DetectorError.
func (c *Capturer) Capture(ctx context.Context, s Settings) (*Clip, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture settings: %w", err)
	}

	log := c.log.With().Str("session", uuid.NewString()).Logger()

	detector, err := c.newDetector(vad.Config{
		Threshold:            s.VADThreshold,
		SampleRate:           s.SampleRate,
		MinSilenceDurationMs: int(s.MinSilence / time.Millisecond),
	})
	if err != nil {
		return nil, &DetectorError{Op: "init", Err: err}
	}

	stream, err := c.device.Open(StreamParams{
		DeviceID:   s.DeviceID,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		FrameSize:  s.FrameSize,
	})
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close audio stream")
		}
	}()

	maxFrames := s.MaxFrames()
	log.Debug().
		Int("sample_rate", s.SampleRate).
		Int("channels", s.Channels).
		Int("max_frames", maxFrames).
		Msg("Listening")

	sess := &session{}
	reason := StopMaxDuration
	normalized := make([]float32, s.FrameSize)

	for sess.read < maxFrames {
		if ctx.Err() != nil {
			reason = StopCancelled
			break
		}

		raw, overflowed, err := stream.Read()
		if err != nil {
			return nil, &DeviceError{Op: "read", Err: err}
		}
		sess.read++
		if overflowed {
			sess.overflow++
			log.Debug().Int("frame", sess.read).Msg("Input overflow")
		}

		mono := firstChannel(raw, s.Channels)
		normalized = normalize(mono, normalized)

		event, err := detector.Classify(normalized)
		if err != nil {
			return nil, &DetectorError{Op: "classify", Err: err}
		}

		if event == vad.EventStart && !sess.started {
			sess.started = true
			log.Debug().Int("frame", sess.read).Msg("Speech started")
		}

		if sess.started {
			sess.frames = append(sess.frames, mono)
		}

		if event == vad.EventEnd {
			sess.ended = true
			reason = StopEnded
			log.Debug().Int("frame", sess.read).Msg("Speech ended")
			break
		}
	}

	if !sess.started || len(sess.frames) == 0 {
		log.Debug().Int("frames_read", sess.read).Msg("No speech")
		return nil, ErrNoSpeech
	}

	clip := &Clip{
		Samples:    concatFrames(sess.frames),
		SampleRate: s.SampleRate,
		Channels:   1,
		Reason:     reason,
	}

	log.Info().
		Stringer("reason", reason).
		Dur("duration", clip.Duration()).
		Int("frames_read", sess.read).
		Int("overflows", sess.overflow).
		Msg("Captured speech")

	return clip, nil
}

// ListDevices lists the input devices of the underlying Device.
func (c *Capturer) ListDevices() ([]AudioDevice, error) {
	return c.device.ListDevices()
}

// firstChannel returns the first channel of an interleaved frame as a new
// slice. Other channels are ignored, not averaged.
func firstChannel(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(interleaved))
		copy(out, interleaved)
		return out
	}

	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		out[i] = interleaved[i*channels]
	}
	return out
}

// normalize converts int16 samples to [-1.0, 1.0), reusing dst when it is
// large enough.
func normalize(samples []int16, dst []float32) []float32 {
	if cap(dst) < len(samples) {
		dst = make([]float32, len(samples))
	}
	dst = dst[:len(samples)]
	for i, v := range samples {
		dst[i] = float32(v) / 32768.0
	}
	return dst
}

func concatFrames(frames [][]int16) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
