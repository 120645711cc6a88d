package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/vad"
)

// Mock implementations for testing
type fakeStream struct {
	frames   [][]int16
	frameLen int

	readErr   error
	readErrAt int

	reads  int
	closed bool
}

func (s *fakeStream) Read() ([]int16, bool, error) {
	s.reads++
	if s.readErr != nil && s.reads == s.readErrAt {
		return nil, false, s.readErr
	}
	if s.reads <= len(s.frames) {
		f := make([]int16, len(s.frames[s.reads-1]))
		copy(f, s.frames[s.reads-1])
		return f, false, nil
	}
	// Silence once the script runs out
	return make([]int16, s.frameLen), false, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeDevice struct {
	stream  *fakeStream
	openErr error
	opened  []StreamParams
}

func (d *fakeDevice) Open(params StreamParams) (Stream, error) {
	d.opened = append(d.opened, params)
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

func (d *fakeDevice) ListDevices() ([]AudioDevice, error) {
	return []AudioDevice{{ID: "default", Name: "Default", Default: true}}, nil
}

func (d *fakeDevice) Close() error {
	return nil
}

// scriptedDetector emits events on fixed 1-indexed calls.
type scriptedDetector struct {
	events map[int]vad.Event
	err    error
	errAt  int
	onCall func(n int)

	calls  int
	frames [][]float32
}

func (d *scriptedDetector) Classify(frame []float32) (vad.Event, error) {
	d.calls++
	d.frames = append(d.frames, append([]float32(nil), frame...))
	if d.onCall != nil {
		d.onCall(d.calls)
	}
	if d.err != nil && d.calls == d.errAt {
		return vad.EventNone, d.err
	}
	return d.events[d.calls], nil
}

func newTestCapturer(dev Device, det vad.Detector) *Capturer {
	return NewCapturer(CapturerConfig{
		Device: dev,
		NewDetector: func(vad.Config) (vad.Detector, error) {
			return det, nil
		},
		Logger: zerolog.Nop(),
	})
}

func testSettings() Settings {
	s := DefaultSettings()
	s.MinSilence = 1500 * time.Millisecond
	return s
}

// numberedFrames returns n mono frames where frame i (1-indexed) is filled
// with i*100.
func numberedFrames(n, size int) [][]int16 {
	frames := make([][]int16, n)
	for i := range frames {
		f := make([]int16, size)
		for j := range f {
			f[j] = int16((i + 1) * 100)
		}
		frames[i] = f
	}
	return frames
}

func assertFrames(t *testing.T, clip *Clip, first, last, size int) {
	t.Helper()
	want := (last - first + 1) * size
	if len(clip.Samples) != want {
		t.Fatalf("expected %d samples, got %d", want, len(clip.Samples))
	}
	for idx := first; idx <= last; idx++ {
		offset := (idx - first) * size
		for j := 0; j < size; j++ {
			if got := clip.Samples[offset+j]; got != int16(idx*100) {
				t.Fatalf("frame %d sample %d: expected %d, got %d", idx, j, idx*100, got)
			}
		}
	}
}

func TestCaptureStartAndEndBoundaries(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{2: vad.EventStart, 5: vad.EventEnd}}

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if len(clip.Samples) != 4*512 {
		t.Fatalf("expected 2048 samples, got %d", len(clip.Samples))
	}
	assertFrames(t, clip, 2, 5, 512)
	if clip.Reason != StopEnded {
		t.Errorf("expected reason ended, got %s", clip.Reason)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("unexpected clip format %d Hz x%d", clip.SampleRate, clip.Channels)
	}
	if stream.reads != 5 {
		t.Errorf("expected loop to stop after 5 reads, got %d", stream.reads)
	}
	if !stream.closed {
		t.Error("stream should be closed")
	}
}

func TestCaptureNoSpeech(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{}

	s := testSettings()
	s.MaxDuration = 320 * time.Millisecond // 10 frames

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), s)
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if clip != nil {
		t.Fatal("no clip should be returned without speech")
	}
	if stream.reads != 10 {
		t.Errorf("expected 10 reads, got %d", stream.reads)
	}
	if !stream.closed {
		t.Error("stream should be closed")
	}
}

func TestCapturePreCancelled(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(100, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{2: vad.EventStart, 5: vad.EventEnd}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(ctx, testSettings())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if stream.reads != 0 {
		t.Errorf("expected no frame reads, got %d", stream.reads)
	}
	if det.calls != 0 {
		t.Errorf("expected no detector calls, got %d", det.calls)
	}
	if !stream.closed {
		t.Error("stream should be closed")
	}
}

func TestCaptureMaxDurationReturnsPartialClip(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{3: vad.EventStart}}

	s := testSettings()
	s.MaxDuration = 320 * time.Millisecond

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), s)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	assertFrames(t, clip, 3, 10, 512)
	if clip.Reason != StopMaxDuration {
		t.Errorf("expected reason max_duration, got %s", clip.Reason)
	}
	if stream.reads != 10 {
		t.Errorf("expected 10 reads, got %d", stream.reads)
	}
}

func TestCaptureCancelAfterStartKeepsAudio(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(20, 512), frameLen: 512}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &scriptedDetector{
		events: map[int]vad.Event{2: vad.EventStart, 10: vad.EventEnd},
		onCall: func(n int) {
			if n == 4 {
				cancel()
			}
		},
	}

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(ctx, testSettings())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	assertFrames(t, clip, 2, 4, 512)
	if clip.Reason != StopCancelled {
		t.Errorf("expected reason cancelled, got %s", clip.Reason)
	}
	if stream.reads != 4 {
		t.Errorf("cancellation should be observed before the 5th read, got %d reads", stream.reads)
	}
	if !stream.closed {
		t.Error("stream should be closed")
	}
}

func TestCaptureCancelBeforeStart(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(20, 512), frameLen: 512}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &scriptedDetector{
		events: map[int]vad.Event{5: vad.EventStart},
		onCall: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}

	_, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(ctx, testSettings())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if stream.reads != 3 {
		t.Errorf("expected 3 reads, got %d", stream.reads)
	}
}

func TestCaptureEndWithoutStartIsNoSpeech(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{4: vad.EventEnd}}

	_, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
	if stream.reads != 4 {
		t.Errorf("end event should stop the loop, got %d reads", stream.reads)
	}
}

func TestCaptureRepeatedStartKeepsAccumulating(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{
		2: vad.EventStart,
		4: vad.EventStart,
		6: vad.EventEnd,
	}}

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	assertFrames(t, clip, 2, 6, 512)
}

func TestCaptureUsesFirstChannelOnly(t *testing.T) {
	run := func(other int16) (*Clip, *scriptedDetector) {
		frames := make([][]int16, 3)
		for i := range frames {
			f := make([]int16, 2*512)
			for j := 0; j < 512; j++ {
				f[2*j] = int16((i + 1) * 100)
				f[2*j+1] = other + int16(j)
			}
			frames[i] = f
		}
		stream := &fakeStream{frames: frames, frameLen: 2 * 512}
		det := &scriptedDetector{events: map[int]vad.Event{1: vad.EventStart, 3: vad.EventEnd}}

		s := testSettings()
		s.Channels = 2

		clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), s)
		if err != nil {
			t.Fatalf("Capture: %v", err)
		}
		return clip, det
	}

	quiet, det := run(0)
	loud, _ := run(20000)

	assertFrames(t, quiet, 1, 3, 512)
	assertFrames(t, loud, 1, 3, 512)

	if len(det.frames[0]) != 512 {
		t.Fatalf("detector should see 512 mono samples, got %d", len(det.frames[0]))
	}
	for j, v := range det.frames[0] {
		if v != float32(100)/32768.0 {
			t.Fatalf("detector sample %d: expected first-channel value, got %f", j, v)
		}
	}
}

func TestCaptureNormalizesDetectorInput(t *testing.T) {
	frame := make([]int16, 512)
	frame[0] = 16384
	frame[1] = -32768
	stream := &fakeStream{frames: [][]int16{frame}, frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{1: vad.EventStart, 2: vad.EventEnd}}

	clip, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if det.frames[0][0] != 0.5 || det.frames[0][1] != -1 {
		t.Fatalf("expected normalized samples 0.5 and -1, got %f and %f", det.frames[0][0], det.frames[0][1])
	}
	// The clip keeps the raw integer samples
	if clip.Samples[0] != 16384 || clip.Samples[1] != -32768 {
		t.Fatalf("expected raw samples in clip, got %d and %d", clip.Samples[0], clip.Samples[1])
	}
}

func TestCaptureOpensStreamWithSettings(t *testing.T) {
	dev := &fakeDevice{stream: &fakeStream{frameLen: 512}}
	det := &scriptedDetector{events: map[int]vad.Event{1: vad.EventStart, 2: vad.EventEnd}}

	s := testSettings()
	s.DeviceID = "USB Mic"

	if _, err := newTestCapturer(dev, det).Capture(context.Background(), s); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	want := StreamParams{DeviceID: "USB Mic", SampleRate: 16000, Channels: 1, FrameSize: 512}
	if len(dev.opened) != 1 || dev.opened[0] != want {
		t.Fatalf("expected stream opened once with %+v, got %+v", want, dev.opened)
	}
}

func TestCapturePassesDetectorConfig(t *testing.T) {
	var got vad.Config
	c := NewCapturer(CapturerConfig{
		Device: &fakeDevice{stream: &fakeStream{frameLen: 512}},
		NewDetector: func(cfg vad.Config) (vad.Detector, error) {
			got = cfg
			return &scriptedDetector{events: map[int]vad.Event{1: vad.EventStart, 2: vad.EventEnd}}, nil
		},
		Logger: zerolog.Nop(),
	})

	s := testSettings()
	s.VADThreshold = 0.6
	s.MinSilence = 20 * time.Second

	if _, err := c.Capture(context.Background(), s); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	want := vad.Config{Threshold: 0.6, SampleRate: 16000, MinSilenceDurationMs: 20000}
	if got != want {
		t.Fatalf("expected detector config %+v, got %+v", want, got)
	}
}

func TestCaptureDeviceOpenError(t *testing.T) {
	openErr := errors.New("no such device")
	dev := &fakeDevice{openErr: openErr}

	_, err := newTestCapturer(dev, &scriptedDetector{}).Capture(context.Background(), testSettings())

	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %T: %v", err, err)
	}
	if devErr.Op != "open" {
		t.Errorf("expected op open, got %s", devErr.Op)
	}
	if !errors.Is(err, openErr) {
		t.Error("DeviceError should wrap the device error")
	}
	if errors.Is(err, ErrNoSpeech) {
		t.Error("device failures must not look like no speech")
	}
}

func TestCaptureDetectorInitError(t *testing.T) {
	dev := &fakeDevice{stream: &fakeStream{frameLen: 512}}
	c := NewCapturer(CapturerConfig{
		Device: dev,
		NewDetector: func(vad.Config) (vad.Detector, error) {
			return nil, errors.New("model missing")
		},
		Logger: zerolog.Nop(),
	})

	_, err := c.Capture(context.Background(), testSettings())

	var detErr *DetectorError
	if !errors.As(err, &detErr) || detErr.Op != "init" {
		t.Fatalf("expected DetectorError(init), got %v", err)
	}
	if len(dev.opened) != 0 {
		t.Error("device should not be opened when the detector fails to load")
	}
}

func TestCaptureReadErrorClosesStream(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512, readErr: errors.New("unplugged"), readErrAt: 3}
	det := &scriptedDetector{events: map[int]vad.Event{1: vad.EventStart}}

	_, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())

	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Op != "read" {
		t.Fatalf("expected DeviceError(read), got %v", err)
	}
	if !stream.closed {
		t.Error("stream should be closed after a read error")
	}
}

func TestCaptureClassifyErrorClosesStream(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{err: errors.New("inference failed"), errAt: 2}

	_, err := newTestCapturer(&fakeDevice{stream: stream}, det).Capture(context.Background(), testSettings())

	var detErr *DetectorError
	if !errors.As(err, &detErr) || detErr.Op != "classify" {
		t.Fatalf("expected DetectorError(classify), got %v", err)
	}
	if !stream.closed {
		t.Error("stream should be closed after a detector error")
	}
}

func TestCaptureRejectsInvalidSettings(t *testing.T) {
	dev := &fakeDevice{stream: &fakeStream{frameLen: 512}}
	s := testSettings()
	s.FrameSize = 0

	if _, err := newTestCapturer(dev, &scriptedDetector{}).Capture(context.Background(), s); err == nil {
		t.Fatal("expected error for zero frame size")
	}
	if len(dev.opened) != 0 {
		t.Error("device should not be opened with invalid settings")
	}
}

func TestCaptureWithEnergyDetector(t *testing.T) {
	loud := make([]int16, 512)
	for i := range loud {
		loud[i] = 16384
	}
	silent := make([]int16, 512)
	frames := [][]int16{silent, silent, loud, loud, loud}

	stream := &fakeStream{frames: frames, frameLen: 512}
	c := NewCapturer(CapturerConfig{
		Device: &fakeDevice{stream: stream},
		Logger: zerolog.Nop(),
	})

	s := testSettings()
	s.MinSilence = 100 * time.Millisecond

	clip, err := c.Capture(context.Background(), s)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	// Start on frame 3; the silence run from frame 6 reaches 100ms on frame 10.
	if len(clip.Samples) != 8*512 {
		t.Fatalf("expected 4096 samples, got %d", len(clip.Samples))
	}
	if clip.Reason != StopEnded {
		t.Errorf("expected reason ended, got %s", clip.Reason)
	}
	if stream.reads != 10 {
		t.Errorf("expected 10 reads, got %d", stream.reads)
	}
}

func TestStartDeliversResult(t *testing.T) {
	stream := &fakeStream{frames: numberedFrames(10, 512), frameLen: 512}
	det := &scriptedDetector{events: map[int]vad.Event{2: vad.EventStart, 5: vad.EventEnd}}

	results := newTestCapturer(&fakeDevice{stream: stream}, det).Start(context.Background(), testSettings())

	select {
	case res := <-results:
		if res.Err != nil {
			t.Fatalf("Start: %v", res.Err)
		}
		assertFrames(t, res.Clip, 2, 5, 512)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for capture result")
	}

	if _, ok := <-results; ok {
		t.Error("result channel should be closed after the result")
	}
}

func TestSettingsMaxFrames(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     int
	}{
		{name: "default", duration: 60 * time.Second, want: 1875},
		{name: "ten frames", duration: 320 * time.Millisecond, want: 10},
		{name: "floors partial frame", duration: 100 * time.Millisecond, want: 3},
		{name: "shorter than a frame", duration: 10 * time.Millisecond, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.MaxDuration = tt.duration
			if got := s.MaxFrames(); got != tt.want {
				t.Fatalf("expected %d frames, got %d", tt.want, got)
			}
		})
	}
}
