package report

import "math"

// Significance is the outcome of the two-proportion z-test on the
// binary fill/no-fill indicator of the two arms.
type Significance struct {
	ZScore     float64 `json:"z_score"`
	PValue     float64 `json:"p_value"`
	Confidence string  `json:"confidence"`
}

// Confidence labels by p-value band.
const (
	Confidence99   = "99%"
	Confidence95   = "95%"
	Confidence90   = "90%"
	NotSignificant = "not significant"
)

// TwoProportionZTest compares fill rates between arms using a pooled
// two-proportion z-test. The p-value is two-tailed, computed from the
// standard normal via the complementary error function.
func TwoProportionZTest(controlFills, controlImpressions, testFills, testImpressions int64) Significance {
	n1 := float64(controlImpressions)
	n2 := float64(testImpressions)
	if n1 <= 0 || n2 <= 0 {
		return Significance{PValue: 1, Confidence: NotSignificant}
	}

	p1 := float64(controlFills) / n1
	p2 := float64(testFills) / n2
	pooled := (float64(controlFills) + float64(testFills)) / (n1 + n2)

	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return Significance{PValue: 1, Confidence: NotSignificant}
	}

	z := (p2 - p1) / se
	p := math.Erfc(math.Abs(z) / math.Sqrt2)

	return Significance{ZScore: z, PValue: p, Confidence: confidenceLabel(p)}
}

func confidenceLabel(p float64) string {
	switch {
	case p < 0.01:
		return Confidence99
	case p < 0.05:
		return Confidence95
	case p < 0.10:
		return Confidence90
	default:
		return NotSignificant
	}
}
