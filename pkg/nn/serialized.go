package nn

import (
	"context"
	"sync"

	"github.com/bmharper/cimg/v2"
)

// Serialized wraps a detector that is not safe for concurrent use,
// so that only one DetectObjects call runs at a time.
type Serialized struct {
	lock     sync.Mutex
	detector ObjectDetector
}

func NewSerialized(detector ObjectDetector) *Serialized {
	return &Serialized{detector: detector}
}

func (s *Serialized) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.detector.Close()
}

func (s *Serialized) DetectObjects(ctx context.Context, img *cimg.Image, params *DetectionParams) ([]ObjectDetection, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.detector.DetectObjects(ctx, img, params)
}

func (s *Serialized) Config() *ModelConfig {
	return s.detector.Config()
}

// Deduplicated runs MergeDuplicates on the output of another detector
type Deduplicated struct {
	ObjectDetector
	MinIoU float32
}

func (d *Deduplicated) DetectObjects(ctx context.Context, img *cimg.Image, params *DetectionParams) ([]ObjectDetection, error) {
	objects, err := d.ObjectDetector.DetectObjects(ctx, img, params)
	if err != nil {
		return nil, err
	}
	return MergeDuplicates(objects, d.MinIoU), nil
}
