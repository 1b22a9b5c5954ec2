package inference

import "math"

// ClassNames are the classifier outputs in index order.
var ClassNames = []string{"lesion", "nonlesion"}

// NormalizedEntropy is the Shannon entropy of p divided by ln(len(p)), so a
// uniform distribution scores 1. Probabilities are clipped to [1e-10, 1].
func NormalizedEntropy(p []float64) float64 {
	if len(p) < 2 {
		return 0
	}
	var h float64
	for _, v := range p {
		v = math.Min(math.Max(v, 1e-10), 1)
		h -= v * math.Log(v)
	}
	return h / math.Log(float64(len(p)))
}

// Argmax returns the index and value of the largest element; ties go to the
// lowest index.
func Argmax(p []float64) (int, float64) {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best, p[best]
}

func round(v float64, places int) float64 {
	f := math.Pow(10, float64(places))
	return math.Round(v*f) / f
}
