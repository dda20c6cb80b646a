package vad

import "math"

// Energy is a lightweight spectral detector: an RMS gate with
// hysteresis so isolated pops don't register and brief dips inside a
// word don't split it.
type Energy struct {
	threshold    float64
	minConfirmed int

	consecutive int
	active      bool
	lastRMS     float64
}

// NewEnergy creates the detector with its default gate.
func NewEnergy() *Energy {
	return &Energy{
		threshold:    0.01,
		minConfirmed: 2, // ~200ms of continuous energy before triggering
	}
}

// SetThreshold overrides the RMS gate.
func (e *Energy) SetThreshold(threshold float64) {
	e.threshold = threshold
}

// LastRMS reports the RMS of the most recent frame.
func (e *Energy) LastRMS() float64 {
	return e.lastRMS
}

func (e *Energy) IsVoiceSegment(frame []float32) (bool, error) {
	rms := frameRMS(frame)
	e.lastRMS = rms

	// release threshold sits below the attack threshold
	gate := e.threshold
	if e.active {
		gate = e.threshold / 2
	}

	if rms > gate {
		e.consecutive++
		if e.consecutive >= e.minConfirmed {
			e.active = true
		}
	} else {
		e.consecutive = 0
		e.active = false
	}
	return e.active, nil
}

func (e *Energy) Reset() {
	e.consecutive = 0
	e.active = false
	e.lastRMS = 0
}

func frameRMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
