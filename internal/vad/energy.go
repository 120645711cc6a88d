package vad

import "math"

const (
	defaultFloorDB = -60.0
	defaultCeilDB  = -20.0
)

// EnergyScorer maps the RMS level of a frame in dBFS onto [0, 1]: frames at
// or below FloorDB score 0, frames at or above CeilDB score 1.
type EnergyScorer struct {
	FloorDB float64
	CeilDB  float64
}

// NewEnergyScorer returns a scorer tuned for close-talk microphones, where
// the default 0.5 threshold sits at -40 dBFS.
func NewEnergyScorer() *EnergyScorer {
	return &EnergyScorer{FloorDB: defaultFloorDB, CeilDB: defaultCeilDB}
}

func (s *EnergyScorer) Score(frame []float32) (float64, error) {
	if len(frame) == 0 {
		return 0, ErrEmptyFrame
	}

	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms == 0 {
		return 0, nil
	}

	db := 20 * math.Log10(rms)
	switch {
	case db <= s.FloorDB:
		return 0, nil
	case db >= s.CeilDB:
		return 1, nil
	}
	return (db - s.FloorDB) / (s.CeilDB - s.FloorDB), nil
}
