package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"golang.org/x/sync/semaphore"

	"proctor-service/internal/domain/proctor"
	"proctor-service/internal/frame"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrCanceled     = errors.New("analysis canceled")
)

type Options struct {
	// Timeout bounds one analysis including the wait for a free slot. Zero disables it.
	Timeout time.Duration
	// MaxConcurrent caps analyses running at once.
	MaxConcurrent int64
}

type ProctorService struct {
	analyzer *FrameAnalyzer
	models   DetectorModels
	timeout  time.Duration
	slots    *semaphore.Weighted
	log      zerolog.Logger
}

func NewProctorService(analyzer *FrameAnalyzer, models DetectorModels, opts Options, log zerolog.Logger) *ProctorService {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &ProctorService{
		analyzer: analyzer,
		models:   models,
		timeout:  opts.Timeout,
		slots:    semaphore.NewWeighted(opts.MaxConcurrent),
		log:      log,
	}
}

type AnalysisReport struct {
	RequestID string
	Result    proctor.AnalysisResult
	Elapsed   time.Duration
}

// ParseFrameRequest pulls the "image" value out of a request mapping.
// A missing, null or empty value is proctor.ErrNoImage.
func ParseFrameRequest(body map[string]any) (proctor.EncodedFrame, error) {
	value, ok := body["image"]
	if !ok || value == nil {
		return proctor.EncodedFrame{}, proctor.ErrNoImage
	}
	switch value.(type) {
	case map[string]any, []any:
		return proctor.EncodedFrame{}, fmt.Errorf("%w: image must be a string", ErrInvalidInput)
	}
	s, err := cast.ToStringE(value)
	if err != nil {
		return proctor.EncodedFrame{}, fmt.Errorf("%w: image must be a string", ErrInvalidInput)
	}
	if s == "" {
		return proctor.EncodedFrame{}, proctor.ErrNoImage
	}
	return frame.NewEncodedFrame(s), nil
}

// AnalyzeFrame analyzes one frame under the configured deadline. Decode and
// processing failures are reported in the result, not as an error.
func (s *ProctorService) AnalyzeFrame(ctx context.Context, raw proctor.EncodedFrame) (*AnalysisReport, error) {
	if raw.Empty() {
		return nil, proctor.ErrNoImage
	}

	report := &AnalysisReport{RequestID: uuid.NewString()}
	start := time.Now()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.run(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			s.log.Info().
				Str("request_id", report.RequestID).
				Dur("elapsed", time.Since(start)).
				Msg("analysis canceled by caller")
		}
		return nil, err
	}
	report.Result = result
	report.Elapsed = time.Since(start)

	s.logReport(report)
	return report, nil
}

type analysisOutcome struct {
	result proctor.AnalysisResult
	err    error
}

func (s *ProctorService) run(ctx context.Context, raw proctor.EncodedFrame) (proctor.AnalysisResult, error) {
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return s.interrupted(ctx)
	}

	done := make(chan analysisOutcome, 1)
	go func() {
		// the slot is held until inference really finishes, even after a timeout
		defer s.slots.Release(1)
		res, err := s.analyzer.Analyze(context.WithoutCancel(ctx), raw, s.models)
		done <- analysisOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return s.interrupted(ctx)
	}
}

// interrupted reports a deadline overrun as a timeout result and a caller that
// went away as ErrCanceled.
func (s *ProctorService) interrupted(ctx context.Context) (proctor.AnalysisResult, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason := "analysis did not finish before the caller's deadline"
		if s.timeout > 0 {
			reason = fmt.Sprintf("analysis did not finish within %s", s.timeout)
		}
		return proctor.ProcessingFailure(proctor.StageTimeout, reason), nil
	}
	return proctor.AnalysisResult{}, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
}

func (s *ProctorService) logReport(r *AnalysisReport) {
	var ev *zerolog.Event
	switch r.Result.Outcome {
	case proctor.OutcomeProcessingError:
		ev = s.log.Error().Str("stage", string(r.Result.Stage)).Str("reason", r.Result.Reason)
	case proctor.OutcomeDecodeError:
		ev = s.log.Warn().Str("reason", r.Result.Reason)
	case proctor.OutcomeNormal:
		ev = s.log.Debug()
	default:
		ev = s.log.Info()
	}
	ev.
		Str("request_id", r.RequestID).
		Str("outcome", r.Result.String()).
		Dur("elapsed", r.Elapsed).
		Msg("frame analyzed")
}
