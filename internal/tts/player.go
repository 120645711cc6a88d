package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/audio"
)

// Player plays a decoded clip, returning when it finished or ctx is done
type Player interface {
	Play(ctx context.Context, clip *audio.Clip) error
}

// otoPlayer owns the process-wide oto context. oto allows a single context
// per process, so its format is fixed by the first clip played.
type otoPlayer struct {
	log zerolog.Logger

	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// NewPlayer returns a Player for the default audio output
func NewPlayer(log zerolog.Logger) Player {
	return &otoPlayer{log: log}
}

func (p *otoPlayer) outputContext(sampleRate, channels int) (*oto.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		if sampleRate != p.sampleRate || channels != p.channels {
			return nil, fmt.Errorf("audio output is fixed at %d Hz x%d, clip is %d Hz x%d",
				p.sampleRate, p.channels, sampleRate, channels)
		}
		return p.ctx, nil
	}

	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio output: %w", err)
	}
	<-ready

	p.log.Debug().Int("sample_rate", sampleRate).Int("channels", channels).Msg("Audio output ready")

	p.ctx = otoCtx
	p.sampleRate = sampleRate
	p.channels = channels
	return otoCtx, nil
}

func (p *otoPlayer) Play(ctx context.Context, clip *audio.Clip) error {
	otoCtx, err := p.outputContext(clip.SampleRate, clip.Channels)
	if err != nil {
		return err
	}

	player := otoCtx.NewPlayer(bytes.NewReader(pcmBytes(clip.Samples)))
	defer player.Close()

	player.Play()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// pcmBytes encodes samples as signed 16-bit little-endian PCM
func pcmBytes(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
