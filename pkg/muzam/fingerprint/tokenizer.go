package fingerprint

import (
	"fmt"

	"github.com/himanishpuri/muzam/pkg/models"
	"github.com/himanishpuri/muzam/pkg/muzam/features"
	"gonum.org/v1/gonum/stat"
)

// Tokenizer hashes adjacent frame pairs into tokens. It holds no mutable
// state and can be shared between goroutines.
type Tokenizer struct {
	hash    hashFunc
	hop     int
	epsilon float64
}

// NewTokenizer builds a tokenizer emitting width-bit tokens with digest d.
// hop must match the extractor that produced the frames.
func NewTokenizer(d Digest, width, hop int, epsilon float64) (*Tokenizer, error) {
	if hop <= 0 {
		return nil, fmt.Errorf("hop size must be positive, got %d", hop)
	}
	h, err := newHashFunc(d, width)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{hash: h, hop: hop, epsilon: epsilon}, nil
}

// Tokenize emits one token per adjacent frame pair for the given scheme.
// Fewer than two frames yields no tokens.
func (t *Tokenizer) Tokenize(frames []features.Frame, scheme models.Scheme, sampleRate int) []models.HashToken {
	if len(frames) < 2 || sampleRate <= 0 {
		return nil
	}

	tokens := make([]models.HashToken, 0, len(frames)-1)
	vec := make([]float64, 0, schemeWidth(scheme))
	bits := make([]byte, 0, schemeWidth(scheme))
	for i := 0; i+1 < len(frames); i++ {
		vec = pairVector(scheme, &frames[i], &frames[i+1], vec[:0])
		bits = t.binarize(vec, bits[:0])
		tokens = append(tokens, models.HashToken{
			Value:      t.hash(bits),
			TimeOffset: float64(frames[i].Index*t.hop) / float64(sampleRate),
			Scheme:     scheme,
		})
	}
	return tokens
}

// binarize z-scores vec and writes '1' for every coordinate at or above
// the mean, '0' otherwise.
func (t *Tokenizer) binarize(vec []float64, dst []byte) []byte {
	mean, std := stat.PopMeanStdDev(vec, nil)
	scale := 1 / (std + t.epsilon)
	for _, v := range vec {
		if (v-mean)*scale >= 0 {
			dst = append(dst, '1')
		} else {
			dst = append(dst, '0')
		}
	}
	return dst
}

func schemeWidth(scheme models.Scheme) int {
	switch scheme {
	case models.SchemeChroma:
		return 2 * features.ChromaBins
	case models.SchemeSpectral:
		return 6
	default:
		return 4 * features.NumCepstra
	}
}

func pairVector(scheme models.Scheme, a, b *features.Frame, dst []float64) []float64 {
	switch scheme {
	case models.SchemeChroma:
		dst = append(dst, a.Chroma[:]...)
		return append(dst, b.Chroma[:]...)
	case models.SchemeSpectral:
		for k := 0; k < 3; k++ {
			dst = append(dst, a.Shape[k], b.Shape[k])
		}
		return dst
	default:
		dst = append(dst, a.MFCC[:]...)
		dst = append(dst, b.MFCC[:]...)
		dst = append(dst, a.Delta[:]...)
		return append(dst, b.Delta[:]...)
	}
}
