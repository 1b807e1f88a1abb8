package opencv

import (
	"image"
	"testing"

	"github.com/samber/lo"
	"go.viam.com/test"
	"gocv.io/x/gocv"

	"proctor-service/internal/detector"
	"proctor-service/internal/domain/proctor"
)

var twoLabels = []string{"person", detector.PhoneLabel}

type candidate struct {
	cx, cy, w, h float32
	scores       []float32
}

// yoloTensor lays candidates out the way YOLOv8 exports them: one row per attribute.
func yoloTensor(classes int, cands ...candidate) ([]float32, []int) {
	n := len(cands)
	data := make([]float32, (4+classes)*n)
	for i, c := range cands {
		data[i] = c.cx
		data[n+i] = c.cy
		data[2*n+i] = c.w
		data[3*n+i] = c.h
		for k, s := range c.scores {
			data[(4+k)*n+i] = s
		}
	}
	return data, []int{1, 4 + classes, n}
}

func keepAll(boxes []image.Rectangle, _ []float32, _, _ float32) []int {
	return lo.Range(len(boxes))
}

var inputSize = image.Pt(detector.InputSize, detector.InputSize)

func TestDecodeYOLOShape(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cases := map[string]struct {
		data []float32
		dims []int
	}{
		"two dims":       {make([]float32, 12), []int{6, 2}},
		"batch of two":   {make([]float32, 24), []int{2, 6, 2}},
		"class mismatch": {make([]float32, 14), []int{1, 7, 2}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeYOLO(tc.data, tc.dims, inputSize, twoLabels, cfg, keepAll)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "incompatible tensor shape")
		})
	}

	_, err := decodeYOLO(make([]float32, 5), []int{1, 6, 2}, inputSize, twoLabels, cfg, keepAll)
	test.That(t, err.Error(), test.ShouldContainSubstring, "output tensor holds 5 values")
}

func TestDecodeYOLOConfidenceBoundary(t *testing.T) {
	cfg := DefaultYOLOConfig()

	data, dims := yoloTensor(2, candidate{320, 320, 40, 80, []float32{0, 0.2499}})
	dets, err := decodeYOLO(data, dims, inputSize, twoLabels, cfg, keepAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)

	data, dims = yoloTensor(2, candidate{320, 320, 40, 80, []float32{0, 0.25}})
	dets, err = decodeYOLO(data, dims, inputSize, twoLabels, cfg, keepAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Label, test.ShouldEqual, detector.PhoneLabel)
	test.That(t, dets[0].Confidence, test.ShouldEqual, 0.25)
}

func TestDecodeYOLOPicksBestClass(t *testing.T) {
	data, dims := yoloTensor(2,
		candidate{100, 100, 20, 20, []float32{0.3, 0.6}},
		candidate{500, 500, 20, 20, []float32{0.7, 0.1}},
	)
	dets, err := decodeYOLO(data, dims, inputSize, twoLabels, DefaultYOLOConfig(), keepAll)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 2)

	byLabel := lo.KeyBy(dets, func(d proctor.Detection) string { return d.Label })
	test.That(t, float32(byLabel["person"].Confidence), test.ShouldEqual, float32(0.7))
	test.That(t, float32(byLabel[detector.PhoneLabel].Confidence), test.ShouldEqual, float32(0.6))
}

func TestDecodeYOLOBoxes(t *testing.T) {
	cfg := DefaultYOLOConfig()
	cases := []struct {
		name string
		cand candidate
		size image.Point
		want image.Rectangle
	}{
		{"center form to corners", candidate{320, 240, 100, 50, nil}, inputSize, image.Rect(270, 215, 370, 265)},
		{"scaled to a smaller image", candidate{320, 240, 100, 50, nil}, image.Pt(320, 320), image.Rect(135, 107, 185, 132)},
		{"clipped at the right edge", candidate{630, 100, 40, 40, nil}, inputSize, image.Rect(610, 80, 640, 120)},
		{"clipped at the origin", candidate{5, 5, 40, 40, nil}, inputSize, image.Rect(0, 0, 25, 25)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cand.scores = []float32{0.9, 0}
			data, dims := yoloTensor(2, tc.cand)
			dets, err := decodeYOLO(data, dims, tc.size, twoLabels, cfg, keepAll)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dets, test.ShouldHaveLength, 1)
			test.That(t, dets[0].BoundingBox, test.ShouldResemble, tc.want)
		})
	}
}

func TestDecodeYOLOSuppressesPerClass(t *testing.T) {
	cfg := DefaultYOLOConfig()
	data, dims := yoloTensor(2,
		candidate{200, 200, 100, 100, []float32{0, 0.9}},
		candidate{202, 201, 100, 100, []float32{0, 0.8}},
		candidate{200, 200, 100, 100, []float32{0.85, 0}},
		candidate{500, 500, 60, 60, []float32{0, 0.4}},
	)

	var calls [][]float32
	recording := func(boxes []image.Rectangle, scores []float32, score, iou float32) []int {
		test.That(t, score, test.ShouldEqual, cfg.ScoreThreshold)
		test.That(t, iou, test.ShouldEqual, float32(0.45))
		calls = append(calls, append([]float32(nil), scores...))
		return keepAll(boxes, scores, score, iou)
	}
	_, err := decodeYOLO(data, dims, inputSize, twoLabels, cfg, recording)
	test.That(t, err, test.ShouldBeNil)
	// one call per class that has candidates, classes in vocabulary order
	test.That(t, calls, test.ShouldResemble, [][]float32{{0.85}, {0.9, 0.8, 0.4}})

	dets, err := decodeYOLO(data, dims, inputSize, twoLabels, cfg, gocv.NMSBoxes)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldHaveLength, 3)

	phones := lo.Filter(dets, func(d proctor.Detection, _ int) bool { return d.Label == detector.PhoneLabel })
	test.That(t, phones, test.ShouldHaveLength, 2)
	confs := lo.Map(phones, func(d proctor.Detection, _ int) float32 { return float32(d.Confidence) })
	test.That(t, confs, test.ShouldContain, float32(0.9))
	test.That(t, confs, test.ShouldContain, float32(0.4))
	test.That(t, confs, test.ShouldNotContain, float32(0.8))
}
