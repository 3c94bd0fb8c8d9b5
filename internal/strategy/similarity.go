package strategy

import "github.com/xrash/smetrics"

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) over the
// lower-cased names. Two empty names are identical.
func Similarity(a, b string) float64 {
	a, b = normalise(a), normalise(b)
	longest := max(len(a), len(b))
	if longest == 0 {
		return 1
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(dist)/float64(longest)
}

// MostSimilar returns the candidate closest to name and its ratio. The ratio
// is 0 when there are no candidates.
func MostSimilar(name string, candidates []string) (string, float64) {
	var best string
	var ratio float64
	for _, c := range candidates {
		if r := Similarity(name, c); r > ratio {
			best, ratio = c, r
		}
	}
	return best, ratio
}
