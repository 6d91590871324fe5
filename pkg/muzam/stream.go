package muzam

import (
	"context"
	"errors"
	"time"

	"github.com/himanishpuri/muzam/pkg/models"
)

// StreamMatch is a confident identification inside a live stream.
type StreamMatch struct {
	// At is the stream position of the end of the analysed window.
	At     time.Duration
	Result models.RecognitionResult
}

// IdentifyStream buffers sample chunks and identifies every full window,
// advancing by the configured step. Only matches at or above the minimum
// stream confidence are sent. The returned channel closes when chunks is
// closed or ctx is done.
func (r *Recognizer) IdentifyStream(ctx context.Context, chunks <-chan []float64, sampleRate int) <-chan StreamMatch {
	out := make(chan StreamMatch)
	window := int(r.cfg.StreamWindow.Seconds() * float64(sampleRate))
	step := int(r.cfg.StreamStep.Seconds() * float64(sampleRate))

	go func() {
		defer close(out)
		if sampleRate <= 0 || window <= 0 || step <= 0 {
			r.log.Errorf("Cannot identify a stream at %d Hz", sampleRate)
			return
		}

		var (
			buf      []float64
			consumed int // samples dropped from the front of buf so far
		)
		for {
			var chunk []float64
			select {
			case <-ctx.Done():
				return
			case c, ok := <-chunks:
				if !ok {
					return
				}
				chunk = c
			}
			buf = append(buf, chunk...)

			for len(buf) >= window {
				m, ok := r.identifyWindow(ctx, buf[:window], sampleRate)
				if ok {
					m.At = time.Duration(float64(consumed+window) / float64(sampleRate) * float64(time.Second))
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				}
				buf = append(buf[:0], buf[step:]...)
				consumed += step
			}
		}
	}()
	return out
}

func (r *Recognizer) identifyWindow(ctx context.Context, samples []float64, sampleRate int) (StreamMatch, bool) {
	window := make([]float64, len(samples))
	copy(window, samples)

	top, err := r.BestMatch(ctx, models.AudioBuffer{Samples: window, SampleRate: sampleRate})
	switch {
	case errors.Is(err, ErrEmptyFingerprint):
		return StreamMatch{}, false
	case err != nil:
		r.log.Warnf("Stream identification failed: %v", err)
		return StreamMatch{}, false
	case top == nil || top.Confidence < r.cfg.StreamMinConfidence:
		return StreamMatch{}, false
	}
	return StreamMatch{Result: *top}, true
}
