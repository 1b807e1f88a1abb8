package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"go.viam.com/test"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

type fakeObjects struct {
	mu    sync.Mutex
	calls int
	dets  []proctor.Detection
	err   error
	panic bool
}

func (f *fakeObjects) Detect(_ context.Context, _ *frame.Image) ([]proctor.Detection, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panic {
		panic("tensor fault")
	}
	return f.dets, f.err
}

type fakeFaces struct {
	mu    sync.Mutex
	calls int
	count int
	err   error
	seen  *frame.Image
}

func (f *fakeFaces) CountFaces(_ context.Context, img *frame.Image) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = img
	return f.count, f.err
}

func encodedPNG(t *testing.T, w, h int) proctor.EncodedFrame {
	t.Helper()
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))), test.ShouldBeNil)
	return frame.NewEncodedFrame("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
}

func detection(t *testing.T, label string, conf float64) proctor.Detection {
	t.Helper()
	d, err := proctor.NewDetection(label, conf, image.Rect(1, 1, 20, 20))
	test.That(t, err, test.ShouldBeNil)
	return d
}

func TestAnalyzePhoneShortCircuit(t *testing.T) {
	for _, label := range []string{"cell phone", "Cell Phone", "CELL PHONE"} {
		objects := &fakeObjects{dets: []proctor.Detection{
			detection(t, "person", 0.9),
			detection(t, label, 0.5),
		}}
		faces := &fakeFaces{count: 1}

		res, err := NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 16, 16),
			DetectorModels{Objects: objects, Faces: faces})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldResemble, proctor.PhoneDetected())
		test.That(t, objects.calls, test.ShouldEqual, 1)
		test.That(t, faces.calls, test.ShouldEqual, 0)
	}
}

func TestAnalyzeFaceDecisionBoundary(t *testing.T) {
	cases := []struct {
		faces int
		want  proctor.AnalysisResult
	}{
		{0, proctor.Suspicious()},
		{1, proctor.Normal()},
		{5, proctor.Normal()},
	}
	for _, tc := range cases {
		objects := &fakeObjects{dets: []proctor.Detection{detection(t, "laptop", 0.8)}}
		faces := &fakeFaces{count: tc.faces}

		res, err := NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 40, 30),
			DetectorModels{Objects: objects, Faces: faces})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldResemble, tc.want)
		test.That(t, faces.calls, test.ShouldEqual, 1)
		// faces are counted on the original, not the resized, image
		test.That(t, faces.seen.Width, test.ShouldEqual, 40)
		test.That(t, faces.seen.Height, test.ShouldEqual, 30)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	decodes := 0
	a := &FrameAnalyzer{decode: func(raw proctor.EncodedFrame) (*frame.Image, error) {
		decodes++
		return frame.Decode(raw)
	}}
	objects := &fakeObjects{}
	faces := &fakeFaces{}

	_, err := a.Analyze(context.Background(), proctor.EncodedFrame{}, DetectorModels{Objects: objects, Faces: faces})
	test.That(t, errors.Is(err, proctor.ErrNoImage), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "No image data provided.")
	test.That(t, decodes, test.ShouldEqual, 0)
	test.That(t, objects.calls, test.ShouldEqual, 0)
}

func TestAnalyzeMalformedBase64(t *testing.T) {
	for _, input := range []string{"not-base64!!", "data:image/jpeg;base64,not-base64!!"} {
		objects := &fakeObjects{}
		faces := &fakeFaces{}

		res, err := NewFrameAnalyzer().Analyze(context.Background(), frame.NewEncodedFrame(input),
			DetectorModels{Objects: objects, Faces: faces})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res, test.ShouldResemble, proctor.DecodeFailure(proctor.ReasonInvalidEncoding))
		test.That(t, objects.calls, test.ShouldEqual, 0)
		test.That(t, faces.calls, test.ShouldEqual, 0)
	}
}

func TestAnalyzeCorruptImage(t *testing.T) {
	objects := &fakeObjects{}
	raw := frame.NewEncodedFrame(base64.StdEncoding.EncodeToString([]byte("GIF89a garbage")))

	res, err := NewFrameAnalyzer().Analyze(context.Background(), raw, DetectorModels{Objects: objects, Faces: &fakeFaces{}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldResemble, proctor.DecodeFailure(proctor.ReasonCorruptImage))
	test.That(t, objects.calls, test.ShouldEqual, 0)
}

func TestAnalyzeObjectDetectionFailures(t *testing.T) {
	faces := &fakeFaces{count: 1}

	// stage tags raised inside the detector are preserved
	objects := &fakeObjects{err: proctor.NewProcessingError(proctor.StageResize, errors.New("empty image"))}
	res, err := NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 8, 8),
		DetectorModels{Objects: objects, Faces: faces})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldResemble, proctor.ProcessingFailure(proctor.StageResize, "empty image"))
	test.That(t, res.Body()["error"], test.ShouldEqual, "resize failed: empty image")

	// untagged errors are attributed to object detection
	objects = &fakeObjects{err: errors.New("model error")}
	res, err = NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 8, 8),
		DetectorModels{Objects: objects, Faces: faces})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldResemble, proctor.ProcessingFailure(proctor.StageObjectDetection, "model error"))

	objects = &fakeObjects{panic: true}
	res, err = NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 8, 8),
		DetectorModels{Objects: objects, Faces: faces})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Outcome, test.ShouldEqual, proctor.OutcomeProcessingError)
	test.That(t, res.Stage, test.ShouldEqual, proctor.StageObjectDetection)

	test.That(t, faces.calls, test.ShouldEqual, 0)
}

func TestAnalyzeFaceDetectionFailure(t *testing.T) {
	faces := &fakeFaces{err: errors.New("cascade not loaded")}
	res, err := NewFrameAnalyzer().Analyze(context.Background(), encodedPNG(t, 8, 8),
		DetectorModels{Objects: &fakeObjects{}, Faces: faces})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldResemble, proctor.ProcessingFailure(proctor.StageFaceDetection, "cascade not loaded"))
	test.That(t, res.Body()["error"], test.ShouldEqual, "face_detection failed: cascade not loaded")
}

func TestAnalyzeConcurrentCallsShareModels(t *testing.T) {
	objects := &fakeObjects{}
	faces := &fakeFaces{count: 1}
	models := DetectorModels{Objects: objects, Faces: faces}
	a := NewFrameAnalyzer()
	raw := encodedPNG(t, 8, 8)

	var wg sync.WaitGroup
	results := make([]proctor.AnalysisResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = a.Analyze(context.Background(), raw, models)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		test.That(t, r, test.ShouldResemble, proctor.Normal())
	}
	test.That(t, objects.calls, test.ShouldEqual, 16)
	test.That(t, faces.calls, test.ShouldEqual, 16)
}
