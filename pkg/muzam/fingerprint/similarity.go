package fingerprint

import "github.com/himanishpuri/muzam/pkg/models"

// Similarity is the Jaccard index of the distinct token values of a and b.
// It is 0 when either fingerprint is empty.
func Similarity(a, b models.Fingerprint) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}
	setA := make(map[string]struct{}, len(a.Tokens))
	for _, tok := range a.Tokens {
		setA[tok.Value] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b.Tokens))
	for _, tok := range b.Tokens {
		setB[tok.Value] = struct{}{}
	}

	inter := 0
	for v := range setB {
		if _, ok := setA[v]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
