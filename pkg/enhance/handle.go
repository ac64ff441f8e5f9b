// Package enhance owns the speech enhancement model: a process-wide handle
// that builds the model on first use, and the VoiceFixer helper process that
// backs it.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"voiceboost/pkg/models"
)

var (
	// ErrModelUnavailable means the model could not be built, or broke, and
	// will not be rebuilt for the rest of the process lifetime.
	ErrModelUnavailable = errors.New("enhancement model unavailable")
	ErrOutOfMemory      = errors.New("out of memory")
	ErrCancelled        = errors.New("restoration cancelled")
)

type Options struct {
	Mode int
	CUDA bool
}

// Model restores speech in a mono waveform.
type Model interface {
	Restore(ctx context.Context, samples []float32, sampleRate int, opts Options) ([]float32, error)
	Close() error
}

type Factory func() (Model, error)

// Handle constructs its Model once, on first use, and reuses it. A failed
// construction is remembered and returned to every later caller. Calls to
// Enhance are serialized.
type Handle struct {
	factory Factory
	opts    Options

	once  sync.Once
	model Model
	err   error

	mu sync.Mutex
}

func NewHandle(factory Factory, opts Options) *Handle {
	return &Handle{factory: factory, opts: opts}
}

// Load builds the model if that has not been attempted yet.
func (h *Handle) Load() error {
	h.once.Do(func() {
		h.model, h.err = h.factory()
		if h.err == nil && h.model == nil {
			h.err = errors.New("factory returned no model")
		}
	})
	if h.err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, h.err)
	}
	return nil
}

// Enhance runs the model on w. The result has the same sample rate.
func (h *Handle) Enhance(ctx context.Context, w models.Waveform) (models.Waveform, error) {
	if err := h.Load(); err != nil {
		return models.Waveform{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := h.model.Restore(ctx, w.Samples, w.SampleRate, h.opts)
	if err != nil {
		return models.Waveform{}, err
	}
	return models.Waveform{SampleRate: w.SampleRate, Samples: out}, nil
}

// Close releases the model. A handle that was never loaded is marked closed
// without building anything.
func (h *Handle) Close() error {
	h.once.Do(func() { h.err = errors.New("handle closed") })
	if h.err != nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model.Close()
}

// IsOutOfMemory reports whether err is a memory exhaustion failure from the
// model.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrOutOfMemory) || strings.Contains(strings.ToLower(err.Error()), "out of memory")
}
