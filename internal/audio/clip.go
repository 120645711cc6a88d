package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// Clip is a finished recording of 16-bit PCM samples.
type Clip struct {
	// Samples are interleaved when Channels > 1. Captured clips are mono.
	Samples    []int16
	SampleRate int
	Channels   int
	Reason     StopReason
}

// Duration is the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// WAV encodes the clip as a 16-bit PCM WAV file.
func (c *Clip) WAV() ([]byte, error) {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, c.SampleRate, bitDepth, channels, 1)

	data := make([]int, len(c.Samples))
	for i, v := range c.Samples {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}
	return out.buf, nil
}

// DecodeWAV reads a 16-bit PCM WAV file.
func DecodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	if dec.BitDepth != bitDepth {
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav data: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return &Clip{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// memFile is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes on Close.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memFile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("memFile: negative position")
	}
	m.pos = int(abs)
	return abs, nil
}
