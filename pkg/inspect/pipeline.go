package inspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/vidinspect/pkg/iox"
	"github.com/cyclopcam/vidinspect/pkg/nn"
	"github.com/cyclopcam/vidinspect/pkg/tempfiles"
	"github.com/cyclopcam/vidinspect/pkg/videox"
	"golang.org/x/sync/errgroup"
)

// EncodeFailurePolicy decides what happens when the annotated frame cannot be encoded
type EncodeFailurePolicy string

const (
	EncodeFailureFail    EncodeFailurePolicy = "fail"    // The whole request fails with KindEncoding
	EncodeFailureDegrade EncodeFailurePolicy = "degrade" // The image is omitted, and the summary is still returned
)

func ParseEncodeFailurePolicy(s string) (EncodeFailurePolicy, error) {
	switch EncodeFailurePolicy(s) {
	case "":
		return EncodeFailureFail, nil
	case EncodeFailureFail, EncodeFailureDegrade:
		return EncodeFailurePolicy(s), nil
	}
	return "", fmt.Errorf("Invalid encode failure policy '%v'. Valid values are '%v' and '%v'", s, EncodeFailureFail, EncodeFailureDegrade)
}

// Pipeline stages, used as keys of DetectionResponse.StageDurations
const (
	StageExtract  = "extract"
	StageDetect   = "detect"
	StageAnnotate = "annotate"
	StageEncode   = "encode"
)

// ModelSource hands out the shared detector. nnload.Shared implements this.
type ModelSource interface {
	Acquire(ctx context.Context) (nn.ObjectDetector, error)
	Release()
}

type Options struct {
	ConfidenceFloor       float32             // Detections below this are discarded. Zero keeps everything
	NmsIouThreshold       float32             // Passed to the detector. Zero means nn.DefaultNmsIouThreshold
	IncludeAnnotatedFrame bool                // Default for requests that don't specify
	OnEncodeFailure       EncodeFailurePolicy // Empty means EncodeFailureFail
	MaxVideoBytes         int64               // Zero means no limit
}

// Pipeline turns a video into a DetectionResponse.
// It holds no per-request state, so Run may be called concurrently.
type Pipeline struct {
	Log     logs.Log
	Decoder videox.VideoDecoder
	Temp    *tempfiles.TempFiles
	Models  ModelSource
	Variant nn.ModelVariant
	Encoder FrameEncoder // If nil, JPEGEncoder with default quality
	Options Options
}

// DetectionResponse is the JSON result of a successful inspection
type DetectionResponse struct {
	Summary               string         `json:"detected_summary"`
	Items                 map[string]int `json:"detected_items"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	AnnotatedFrame        string         `json:"annotated_frame_base64_jpg,omitempty"`
	ModelVariant          string         `json:"model_variant"`
	FrameWidth            int            `json:"frame_width"`
	FrameHeight           int            `json:"frame_height"`

	Detections     []RawDetection           `json:"-"` // Detections that survived the confidence floor
	StageDurations map[string]time.Duration `json:"-"`
}

func (p *Pipeline) encoder() FrameEncoder {
	if p.Encoder == nil {
		return JPEGEncoder{}
	}
	return p.Encoder
}

// Run inspects the first frame of video.
// includeFrame controls whether the annotated frame is returned.
// Every error returned is an *Error. Panics in any stage are converted to KindInternal.
func (p *Pipeline) Run(ctx context.Context, video io.Reader, includeFrame bool) (resp *DetectionResponse, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.Log.Errorf("Panic in inspection pipeline: %v\n%v", rec, string(debug.Stack()))
			resp = nil
			err = newError(KindInternal, "Internal error: %v", rec)
		}
	}()

	if video == nil {
		return nil, ErrMissingInput
	}
	durations := map[string]time.Duration{}

	// 1. Frame
	t := time.Now()
	frame, err := videox.ExtractFirstFrame(ctx, p.Decoder, p.Temp, video, p.Options.MaxVideoBytes)
	durations[StageExtract] = time.Since(t)
	if err != nil {
		return nil, classifyExtractError(ctx, err)
	}

	// 2. Detections
	t = time.Now()
	raw, err := p.detect(ctx, frame)
	durations[StageDetect] = time.Since(t)
	if err != nil {
		return nil, err
	}
	survivors := FilterByConfidence(raw, p.Options.ConfidenceFloor)

	// 3. Summary and annotated frame. Both only read 'survivors'.
	var summary DetectionSummary
	var encoded string
	var annotateTime, encodeTime time.Duration
	var encodeErr error
	g := errgroup.Group{}
	g.Go(func() error {
		summary = Summarize(survivors)
		return nil
	})
	if includeFrame {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("Panic while annotating frame: %v", rec)
				}
			}()
			t := time.Now()
			annotated := Annotate(frame, survivors)
			annotateTime = time.Since(t)
			t = time.Now()
			encoded, encodeErr = p.encoder().Encode(annotated)
			encodeTime = time.Since(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newError(KindInternal, "%w", err)
	}
	if includeFrame {
		durations[StageAnnotate] = annotateTime
		durations[StageEncode] = encodeTime
	}
	if encodeErr != nil {
		if p.Options.OnEncodeFailure != EncodeFailureDegrade {
			return nil, newError(KindEncoding, "Failed to encode annotated frame: %w", encodeErr)
		}
		p.Log.Warnf("Omitting annotated frame: %v", encodeErr)
		encoded = ""
	}

	return &DetectionResponse{
		Summary:               summary.Text,
		Items:                 summary.Counts,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		AnnotatedFrame:        encoded,
		ModelVariant:          string(p.Variant),
		FrameWidth:            frame.Width,
		FrameHeight:           frame.Height,
		Detections:            survivors,
		StageDurations:        durations,
	}, nil
}

// detect runs the shared detector. A detector that panics is reported as a detection failure.
func (p *Pipeline) detect(ctx context.Context, frame *cimg.Image) (objects []RawDetection, err error) {
	model, err := p.Models.Acquire(ctx)
	if err != nil {
		return nil, newError(KindDetection, "Failed to load detector: %w", err)
	}
	defer p.Models.Release()

	defer func() {
		if rec := recover(); rec != nil {
			p.Log.Errorf("Detector panic: %v\n%v", rec, string(debug.Stack()))
			objects = nil
			err = newError(KindDetection, "Detector crashed: %v", rec)
		}
	}()

	params := &nn.DetectionParams{
		ProbabilityThreshold: p.Options.ConfidenceFloor,
		NmsIouThreshold:      p.Options.NmsIouThreshold,
	}
	objects, err = model.DetectObjects(ctx, frame, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindInternal, "Detection interrupted: %w", ctx.Err())
		}
		return nil, newError(KindDetection, "Detection failed: %w", err)
	}
	return objects, nil
}

func classifyExtractError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		return newError(KindInternal, "Frame extraction interrupted: %w", ctx.Err())
	}
	if errors.Is(err, videox.ErrOpen) || errors.Is(err, videox.ErrNoFrame) || errors.Is(err, iox.ErrTooLarge) {
		return &Error{Kind: KindExtraction, Err: err}
	}
	return newError(KindInternal, "Frame extraction failed: %w", err)
}
