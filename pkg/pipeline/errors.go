package pipeline

import (
	"errors"
	"fmt"

	"voiceboost/pkg/models"
)

var (
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyUpload     = errors.New("empty upload")
	ErrQueueFull       = errors.New("pipeline queue is full")
	ErrShuttingDown    = errors.New("pipeline is shutting down")
)

type Kind string

const (
	KindRejected     Kind = "rejected"
	KindTool         Kind = "tool"
	KindTimeout      Kind = "timeout"
	KindResource     Kind = "resource"
	KindUnclassified Kind = "unclassified"
)

// Error is a terminal failure of a run. Stage is the state the run was
// trying to reach; Message is what the user is shown.
type Error struct {
	Kind    Kind
	Stage   models.State
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, stage models.State, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}

func unexpected(stage models.State, err error) *Error {
	return newError(KindUnclassified, stage, err, "An unexpected error occurred: %v", err)
}

// UserMessage returns the message to show for err.
func UserMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Message
	}
	switch {
	case errors.Is(err, ErrQueueFull):
		return "The service is busy. Please try again in a few minutes."
	case errors.Is(err, ErrShuttingDown):
		return "The service is restarting. Please try again shortly."
	}
	return fmt.Sprintf("An unexpected error occurred: %v", err)
}

// KindOf classifies err, defaulting to KindUnclassified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Kind
	}
	return KindUnclassified
}
