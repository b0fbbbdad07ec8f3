package deviation

import (
	"math"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Classify maps a deviation onto a tier. The boolean is false when the
// deviation stays under the low threshold, which means no alert.
//
// Underspend is classified by magnitude like overspend. Each tier's lower
// bound is inclusive, so a value on a boundary lands in the higher tier.
// A zero-plan deviation is always critical.
func Classify(pct model.Percentage, t model.Thresholds) (model.Severity, bool) {
	if pct.Unbounded() {
		return model.SeverityCritical, true
	}
	v := math.Abs(float64(pct))
	if math.IsNaN(v) {
		return "", false
	}
	for _, b := range t.Bounds() {
		if v >= b.Min {
			return b.Severity, true
		}
	}
	return "", false
}

// ClassifyResult classifies a calculator result. Empty results never alert.
func ClassifyResult(r Result, t model.Thresholds) (model.Severity, bool) {
	if r.Empty() {
		return "", false
	}
	return Classify(r.DeviationPct, t)
}
