package types

import (
	"errors"
	"fmt"
)

// ErrNoSuccessfulItems is returned when every trial, sample, fold, or step
// in a batch failed. A batch with some skipped items is not an error; the
// skipped count on the result carries the annotation.
var ErrNoSuccessfulItems = errors.New("no successful items in batch")

// InvalidParameterError reports a caller-supplied parameter that makes the
// requested run impossible. Always fatal for the operation.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Reason)
}

// InsufficientDataError reports an input below the minimum observation
// threshold. It causes exclusion of the item, not a batch failure.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d rows, got %d", e.Op, e.Need, e.Got)
}

// CollaboratorError reports a failure in an external collaborator such as a
// strategy evaluator. The affected step is skipped and counted.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: collaborator failure: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
