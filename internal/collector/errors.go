package collector

import "fmt"

// StatusCheckFailedError means a workload's status endpoint could not
// be reached or its answer could not be parsed. A workload is never
// deleted on this error; the pass backs off instead.
type StatusCheckFailedError struct {
	cause error
}

func NewStatusCheckFailedError(cause error) *StatusCheckFailedError {
	return &StatusCheckFailedError{cause: cause}
}

func (e *StatusCheckFailedError) Error() string {
	return fmt.Sprintf("status check failed: %v", e.cause)
}

func (e *StatusCheckFailedError) Unwrap() error {
	return e.cause
}

// DeleteFailedError means the cluster rejected or could not perform
// the delete of an expired workload resource.
type DeleteFailedError struct {
	cause error
}

func NewDeleteFailedError(cause error) *DeleteFailedError {
	return &DeleteFailedError{cause: cause}
}

func (e *DeleteFailedError) Error() string {
	return fmt.Sprintf("delete failed: %v", e.cause)
}

func (e *DeleteFailedError) Unwrap() error {
	return e.cause
}
