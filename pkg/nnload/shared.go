package nnload

import (
	"context"
	"errors"
	"sync"

	"github.com/cyclopcam/vidinspect/pkg/nn"
)

var ErrClosed = errors.New("Shared model has been closed")

// LoadFunc creates the model. It is called at most once per successful load.
type LoadFunc func(ctx context.Context) (nn.ObjectDetector, error)

// Shared is a lazily loaded model that is shared by all requests in the process.
// The model is loaded by the first Acquire. If that load fails, the next Acquire tries again.
// Every successful Acquire must be paired with a Release. Close does not block. It marks the
// model as closed, and the model is closed as soon as the last reference is released.
type Shared struct {
	load LoadFunc

	lock    sync.Mutex // guards all state below, and serializes loading
	model   nn.ObjectDetector
	refs    int
	closing bool
	closed  bool
}

func NewShared(load LoadFunc) *Shared {
	return &Shared{load: load}
}

// Acquire returns the shared model, loading it if necessary
func (s *Shared) Acquire(ctx context.Context) (nn.ObjectDetector, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closing {
		return nil, ErrClosed
	}
	if s.model == nil {
		model, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		s.model = model
	}
	s.refs++
	return s.model, nil
}

// Release returns a reference obtained from Acquire
func (s *Shared) Release() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.refs <= 0 {
		panic("Shared.Release called without a matching Acquire")
	}
	s.refs--
	s.closeIfUnused()
}

// Loaded returns true if the model has been loaded and not yet closed
func (s *Shared) Loaded() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.model != nil && !s.closed
}

// Close prevents further Acquires, and closes the model once all references are released
func (s *Shared) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closing = true
	s.closeIfUnused()
}

func (s *Shared) closeIfUnused() {
	if s.closing && s.refs == 0 && s.model != nil && !s.closed {
		s.model.Close()
		s.closed = true
	}
}
