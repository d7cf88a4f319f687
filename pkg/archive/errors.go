package archive

import (
	"errors"
	"fmt"
)

// AssemblyError reports an I/O failure while building or delivering an
// archive. Nothing was handed to the deliverer when it is returned, or the
// hand-off itself failed.
type AssemblyError struct {
	Op       string
	Path     string
	Err      error
	Warnings []error
}

func (e *AssemblyError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// CleanupWarning reports a blob that could not be deleted after assembly.
// It never fails the operation.
type CleanupWarning struct {
	Path string
	Err  error
}

func (w *CleanupWarning) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", w.Path, w.Err)
}

func (w *CleanupWarning) Unwrap() error {
	return w.Err
}

// IsAssemblyError reports whether err is an AssemblyError
func IsAssemblyError(err error) bool {
	var ae *AssemblyError
	return errors.As(err, &ae)
}
