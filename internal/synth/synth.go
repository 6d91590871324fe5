// Package synth renders deterministic test signals.
package synth

import (
	"math"
	"math/rand"

	"github.com/himanishpuri/muzam/pkg/models"
)

// Sine renders a pure tone.
func Sine(freq, amplitude, seconds float64, sampleRate int) models.AudioBuffer {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return models.AudioBuffer{Samples: samples, SampleRate: sampleRate}
}

// Melody renders a sequence of random notes with harmonics and a low noise
// floor. The same seed always yields the same samples.
func Melody(seed int64, seconds float64, sampleRate int) models.AudioBuffer {
	rng := rand.New(rand.NewSource(seed))
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)

	noteLen := sampleRate / 5
	var freq, phase float64
	for i := range samples {
		if i%noteLen == 0 {
			midi := 48 + rng.Intn(36)
			freq = 440 * math.Pow(2, float64(midi-69)/12)
		}
		phase += 2 * math.Pi * freq / float64(sampleRate)
		pos := float64(i%noteLen) / float64(noteLen)
		env := math.Min(1, pos*20) * (1 - 0.5*pos)
		v := math.Sin(phase) + 0.5*math.Sin(2*phase) + 0.25*math.Sin(3*phase)
		samples[i] = 0.4*env*v + 0.02*(rng.Float64()*2-1)
	}
	return models.AudioBuffer{Samples: samples, SampleRate: sampleRate}
}

// Perturb returns a copy of buf with deterministic noise of the given
// amplitude added to count samples starting at offset.
func Perturb(buf models.AudioBuffer, offset, count int, amplitude float64, seed int64) models.AudioBuffer {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, len(buf.Samples))
	copy(out, buf.Samples)
	for i := offset; i < offset+count && i < len(out); i++ {
		out[i] += amplitude * (rng.Float64()*2 - 1)
	}
	return models.AudioBuffer{Samples: out, SampleRate: buf.SampleRate}
}
