package opencv

import (
	"fmt"
	"image"
	"math"

	"proctor-service/internal/domain/proctor"
)

// nmsFunc returns the indices of boxes kept by non-maximum suppression.
type nmsFunc func(boxes []image.Rectangle, scores []float32, scoreThreshold, nmsThreshold float32) []int

// decodeYOLO reads a [1, 4+classes, candidates] tensor laid out attribute-major:
// row 0..3 hold cx, cy, w, h for every candidate, the remaining rows one class score
// each. Boxes are scaled from the network input to imgSize and clipped to it.
// Suppression runs per class, so overlapping boxes of different labels both survive.
func decodeYOLO(data []float32, dims []int, imgSize image.Point, labels []string, cfg YOLOConfig, nms nmsFunc) ([]proctor.Detection, error) {
	classes := len(labels)
	if len(dims) != 3 || dims[0] != 1 || dims[1] != 4+classes {
		return nil, fmt.Errorf("incompatible tensor shape %v for %d classes", dims, classes)
	}
	attrs, n := dims[1], dims[2]
	if len(data) < attrs*n {
		return nil, fmt.Errorf("output tensor holds %d values, want %d", len(data), attrs*n)
	}

	sx := float32(imgSize.X) / float32(cfg.InputSize)
	sy := float32(imgSize.Y) / float32(cfg.InputSize)
	bounds := image.Rectangle{Max: imgSize}

	boxes := make([][]image.Rectangle, classes)
	scores := make([][]float32, classes)
	for i := 0; i < n; i++ {
		best, cls := float32(0), -1
		for c := 0; c < classes; c++ {
			if s := data[(4+c)*n+i]; s > best {
				best, cls = s, c
			}
		}
		if cls < 0 || best < cfg.ScoreThreshold {
			continue
		}
		cx, cy, w, h := data[i], data[n+i], data[2*n+i], data[3*n+i]
		rect := image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		).Intersect(bounds)
		boxes[cls] = append(boxes[cls], rect)
		scores[cls] = append(scores[cls], best)
	}

	var detections []proctor.Detection
	for cls := 0; cls < classes; cls++ {
		if len(boxes[cls]) == 0 {
			continue
		}
		for _, k := range nms(boxes[cls], scores[cls], cfg.ScoreThreshold, cfg.NMSThreshold) {
			conf := math.Min(1, float64(scores[cls][k]))
			det, err := proctor.NewDetection(labels[cls], conf, boxes[cls][k])
			if err != nil {
				return nil, err
			}
			detections = append(detections, det)
		}
	}
	return detections, nil
}
