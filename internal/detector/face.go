package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

// Cascade scan parameters. These are fixed by policy; changing them changes which
// frames are flagged.
const (
	CascadeScaleFactor  = 1.1
	CascadeMinNeighbors = 5
	CascadeMinSize      = 30
)

type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
	MinSize      image.Point
}

func FaceCascadeParams() CascadeParams {
	return CascadeParams{
		ScaleFactor:  CascadeScaleFactor,
		MinNeighbors: CascadeMinNeighbors,
		MinSize:      image.Pt(CascadeMinSize, CascadeMinSize),
	}
}

// Cascade is a multi-scale sliding-window classifier. Overlapping hits are merged by
// its own neighbor voting; the returned rectangles are the accepted detections.
type Cascade interface {
	DetectMultiScale(gray *image.Gray, params CascadeParams) ([]image.Rectangle, error)
}

type FaceDetector struct {
	cascade Cascade
	params  CascadeParams
}

func NewFaceDetector(cascade Cascade) (*FaceDetector, error) {
	if cascade == nil {
		return nil, errors.New("face detector must have a Cascade")
	}
	return &FaceDetector{cascade: cascade, params: FaceCascadeParams()}, nil
}

// CountFaces converts img to grayscale and returns the number of accepted face regions.
// Any failure is a ProcessingError tagged face_detection.
func (d *FaceDetector) CountFaces(_ context.Context, img *frame.Image) (int, error) {
	var count int
	err := guard(proctor.StageFaceDetection, func() error {
		gray, err := img.Gray()
		if err != nil {
			return fmt.Errorf("grayscale: %w", err)
		}
		rects, err := d.cascade.DetectMultiScale(gray, d.params)
		if err != nil {
			return err
		}
		count = len(rects)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
