package audio

import (
	"fmt"
	"math"
	"sync"
)

// Band-limited sinc resampler. The kernel is a 256-tap windowed sinc
// with a 0.95 cutoff, precomputed at 256 sub-sample phases and
// linearly interpolated between adjacent phases.
const (
	sincTaps         = 256
	sincOversampling = 256
	sincCutoff       = 0.95
)

type sincBank struct {
	// oversampling+1 phases so phase p+1 is always addressable
	phases [][]float32
}

var (
	bankMu    sync.Mutex
	bankCache = map[float64]*sincBank{}
)

// two-term Blackman-Harris window over [-taps/2, taps/2]
func sincWindow(t float64) float64 {
	if t < -sincTaps/2 || t > sincTaps/2 {
		return 0
	}
	return 0.53836 + 0.46164*math.Cos(2*math.Pi*t/float64(sincTaps))
}

func newSincBank(cutoff float64) *sincBank {
	bankMu.Lock()
	defer bankMu.Unlock()
	if b, ok := bankCache[cutoff]; ok {
		return b
	}

	b := &sincBank{phases: make([][]float32, sincOversampling+1)}
	for p := 0; p <= sincOversampling; p++ {
		frac := float64(p) / float64(sincOversampling)
		taps := make([]float32, sincTaps)
		var sum float64
		for j := 0; j < sincTaps; j++ {
			t := float64(j-sincTaps/2) - frac
			var v float64
			if t == 0 {
				v = cutoff
			} else {
				x := math.Pi * cutoff * t
				v = cutoff * math.Sin(x) / x
			}
			v *= sincWindow(t)
			taps[j] = float32(v)
			sum += v
		}
		// unity DC gain per phase
		if sum != 0 {
			inv := float32(1 / sum)
			for j := range taps {
				taps[j] *= inv
			}
		}
		b.phases[p] = taps
	}
	bankCache[cutoff] = b
	return b
}

// Resample converts a mono signal from fromRate to toRate.
func Resample(input []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(input) == 0 {
		out := make([]float32, len(input))
		copy(out, input)
		return out, nil
	}

	ratio := float64(toRate) / float64(fromRate)
	cutoff := sincCutoff
	if ratio < 1 {
		// shrink the passband when decimating to stay below the new Nyquist
		cutoff *= ratio
	}
	bank := newSincBank(cutoff)

	outLen := len(input) * toRate / fromRate
	out := make([]float32, outLen)
	step := float64(fromRate) / float64(toRate)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		base := int(pos)
		frac := pos - float64(base)

		sub := frac * sincOversampling
		p := int(sub)
		pfrac := float32(sub - float64(p))
		lo := bank.phases[p]
		hi := bank.phases[p+1]

		var acc float32
		start := base - sincTaps/2
		for j := 0; j < sincTaps; j++ {
			idx := start + j
			if idx < 0 || idx >= len(input) {
				continue
			}
			coeff := lo[j] + (hi[j]-lo[j])*pfrac
			acc += input[idx] * coeff
		}
		out[i] = acc
	}
	return out, nil
}
