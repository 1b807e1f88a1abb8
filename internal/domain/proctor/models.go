package proctor

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrNoImage is returned when a request carries no image payload at all.
var ErrNoImage = errors.New("No image data provided.")

type Stage string

const (
	StageResize          Stage = "resize"
	StageColorConversion Stage = "color_conversion"
	StageObjectDetection Stage = "object_detection"
	StageFaceDetection   Stage = "face_detection"
	StageTimeout         Stage = "timeout"
)

const (
	ReasonInvalidEncoding = "invalid encoding"
	ReasonCorruptImage    = "corrupt image"
	ReasonImageTooLarge   = "image too large"
)

type Status string

const (
	StatusNormal        Status = "normal"
	StatusSuspicious    Status = "suspicious"
	StatusPhoneDetected Status = "phone_detected"
)

// EncodedFrame is a single submitted webcam frame before decoding.
type EncodedFrame struct {
	// MediaType is the declared data-URL tag (e.g. "image/jpeg;base64"), empty for raw base64.
	MediaType string
	Payload   string
}

func (f EncodedFrame) Empty() bool {
	return f.Payload == "" && f.MediaType == ""
}

type Detection struct {
	Label       string          `json:"label"`
	Confidence  float64         `json:"confidence"`
	BoundingBox image.Rectangle `json:"bounding_box"`
}

// NewDetection builds a Detection, rejecting confidences outside [0,1] and inverted boxes.
func NewDetection(label string, confidence float64, box image.Rectangle) (Detection, error) {
	if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return Detection{}, fmt.Errorf("confidence %v out of range [0,1]", confidence)
	}
	if box.Max.X < box.Min.X || box.Max.Y < box.Min.Y {
		return Detection{}, fmt.Errorf("invalid bounding box %v", box)
	}
	return Detection{
		Label:       label,
		Confidence:  confidence,
		BoundingBox: box,
	}, nil
}

type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	return e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type ProcessingError struct {
	Stage  Stage
	Reason string
	Err    error
}

func NewProcessingError(stage Stage, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, Reason: err.Error(), Err: err}
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Reason)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

type Outcome int

const (
	OutcomeNormal Outcome = iota + 1
	OutcomeSuspicious
	OutcomePhoneDetected
	OutcomeDecodeError
	OutcomeProcessingError
)

// AnalysisResult is the single terminal outcome of analyzing one frame.
type AnalysisResult struct {
	Outcome Outcome
	Stage   Stage
	Reason  string
}

func Normal() AnalysisResult        { return AnalysisResult{Outcome: OutcomeNormal} }
func Suspicious() AnalysisResult    { return AnalysisResult{Outcome: OutcomeSuspicious} }
func PhoneDetected() AnalysisResult { return AnalysisResult{Outcome: OutcomePhoneDetected} }

func DecodeFailure(reason string) AnalysisResult {
	return AnalysisResult{Outcome: OutcomeDecodeError, Reason: reason}
}

func ProcessingFailure(stage Stage, reason string) AnalysisResult {
	return AnalysisResult{Outcome: OutcomeProcessingError, Stage: stage, Reason: reason}
}

// ResultFromError maps a stage error onto its result variant. Errors that are
// neither DecodeError nor ProcessingError are attributed to fallback.
func ResultFromError(err error, fallback Stage) AnalysisResult {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return DecodeFailure(decErr.Reason)
	}
	var procErr *ProcessingError
	if errors.As(err, &procErr) {
		return ProcessingFailure(procErr.Stage, procErr.Reason)
	}
	return ProcessingFailure(fallback, err.Error())
}

func (r AnalysisResult) Status() Status {
	switch r.Outcome {
	case OutcomeNormal:
		return StatusNormal
	case OutcomeSuspicious:
		return StatusSuspicious
	case OutcomePhoneDetected:
		return StatusPhoneDetected
	default:
		return ""
	}
}

func (r AnalysisResult) IsError() bool {
	return r.Outcome == OutcomeDecodeError || r.Outcome == OutcomeProcessingError
}

// Err returns the typed error behind a failure result, or nil for success variants.
func (r AnalysisResult) Err() error {
	switch r.Outcome {
	case OutcomeDecodeError:
		return &DecodeError{Reason: r.Reason}
	case OutcomeProcessingError:
		return &ProcessingError{Stage: r.Stage, Reason: r.Reason}
	default:
		return nil
	}
}

// Body is the response mapping for the result: {"status": ...} or {"error": ...}.
func (r AnalysisResult) Body() map[string]string {
	if err := r.Err(); err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]string{"status": string(r.Status())}
}

func (r AnalysisResult) String() string {
	if err := r.Err(); err != nil {
		return err.Error()
	}
	return string(r.Status())
}
