package conversation

import (
	"errors"
	"fmt"
)

// ErrEmptySession is returned when assembly is requested before any upload
var ErrEmptySession = errors.New("session has no files")

// StagingError reports an upload that could not be written to the blob store
type StagingError struct {
	Filename string
	Err      error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("failed to stage %s: %v", e.Filename, e.Err)
}

func (e *StagingError) Unwrap() error {
	return e.Err
}
