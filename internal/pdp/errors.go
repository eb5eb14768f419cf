package pdp

import (
	"errors"
	"fmt"
)

// Common evaluation errors.
var (
	// ErrEvaluationFailed indicates an unexpected internal failure during
	// evaluation. The engine fails closed: the caller still receives a
	// deny decision.
	ErrEvaluationFailed = errors.New("security evaluation failed")

	// ErrNilRequest indicates a nil evaluation request.
	ErrNilRequest = errors.New("nil evaluation request")

	// ErrInvalidConfig indicates an invalid engine configuration.
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// EvaluationError wraps an internal failure with request context.
type EvaluationError struct {
	// Err is the underlying error.
	Err error

	// UserID is the subject that was being evaluated.
	UserID string

	// Resource is the resource that was being accessed.
	Resource string

	// Action is the action that was being performed.
	Action string
}

// Error returns the error message.
func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation failed: %v", e.Err)
	}
	return "evaluation failed"
}

// Unwrap returns the underlying error.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// IsEvaluationFailed checks if an error is an evaluation failure.
func IsEvaluationFailed(err error) bool {
	return errors.Is(err, ErrEvaluationFailed)
}
