package ipc

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInstanceNotFound is returned when a named instance does not exist.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrCloseMain is returned when asked to close the main instance.
	ErrCloseMain = errors.New("cannot close the main instance")
	// ErrCloseLast is returned when asked to close the only instance.
	ErrCloseLast = errors.New("cannot close the last instance")
)

// ResolutionError reports a target_instance_id that is not a valid id.
type ResolutionError struct {
	Raw string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve target instance %q: %v", e.Raw, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolve returns the addressee of cmd. A present target id is parsed and
// returned verbatim whether or not it names a live instance; a malformed one
// is a *ResolutionError. An absent target resolves to defaultID.
func Resolve(cmd Command, defaultID uuid.UUID) (uuid.UUID, error) {
	target := cmd.Target()
	if target == nil {
		return defaultID, nil
	}
	id, err := uuid.Parse(*target)
	if err != nil {
		return uuid.Nil, &ResolutionError{Raw: *target, Err: err}
	}
	return id, nil
}
