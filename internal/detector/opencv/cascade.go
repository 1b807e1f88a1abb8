// Package opencv binds the detector contracts to OpenCV through gocv.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"proctor-service/internal/detector"
)

// Cascade is a Haar/LBP cascade classifier. OpenCV does not promise that
// detectMultiScale is reentrant, so calls are serialized on one mutex.
type Cascade struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

func LoadCascade(path string) (*Cascade, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade classifier from %s", path)
	}
	return &Cascade{classifier: classifier}, nil
}

func (c *Cascade) DetectMultiScale(gray *image.Gray, params detector.CascadeParams) ([]image.Rectangle, error) {
	if gray == nil || gray.Bounds().Empty() {
		return nil, errors.New("empty grayscale image")
	}
	b := gray.Bounds()
	pix := gray.Pix
	if gray.Stride != b.Dx() || len(pix) != b.Dx()*b.Dy() {
		pix = make([]uint8, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := gray.PixOffset(b.Min.X, y)
			pix = append(pix, gray.Pix[off:off+b.Dx()]...)
		}
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, pix)
	if err != nil {
		return nil, fmt.Errorf("grayscale mat: %w", err)
	}
	defer mat.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.DetectMultiScaleWithParams(
		mat, params.ScaleFactor, params.MinNeighbors, 0, params.MinSize, image.Point{},
	), nil
}

func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier.Close()
}
