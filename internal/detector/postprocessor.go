package detector

import (
	"github.com/samber/lo"

	"proctor-service/internal/domain/proctor"
)

// Postprocessor defines a function that filters/modifies an incoming slice of Detections.
type Postprocessor func([]proctor.Detection) []proctor.Detection

// NewScoreFilter returns a function that filters out detections below a certain confidence.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []proctor.Detection) []proctor.Detection {
		return lo.Filter(in, func(d proctor.Detection, _ int) bool {
			return d.Confidence >= conf
		})
	}
}

// Chain applies postprocessors left to right.
func Chain(pp ...Postprocessor) Postprocessor {
	return func(in []proctor.Detection) []proctor.Detection {
		for _, p := range pp {
			in = p(in)
		}
		return in
	}
}
