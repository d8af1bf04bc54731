package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady matches any NotReadyError via errors.Is.
	ErrNotReady = errors.New("resolution not ready")

	// ErrNotFound is returned by member sources for unknown accounts.
	ErrNotFound = errors.New("account not found")
)

// DanglingReferenceError reports a delegate pointer to an id that is not in
// the working set.
type DanglingReferenceError struct {
	ID   string // missing delegate id
	From string // member holding the pointer
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("delegation from %s references unknown member %s", e.From, e.ID)
}

// CycleError reports a delegation chain that revisits a node before reaching
// a root. ID lies on the cycle.
type CycleError struct {
	ID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("delegation cycle through %s", e.ID)
}

// NotReadyError signals that upstream data is insufficient. It is a
// transient state, not a failure.
type NotReadyError struct {
	Reason string
}

func (e *NotReadyError) Error() string {
	return "not ready: " + e.Reason
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// SourceUnavailableError wraps a transport failure of the member source.
type SourceUnavailableError struct {
	Op  string
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("member source unavailable (%s): %v", e.Op, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// OffendingID returns the member id carried by a cycle or dangling
// reference error.
func OffendingID(err error) (string, bool) {
	var cycle *CycleError
	if errors.As(err, &cycle) {
		return cycle.ID, true
	}
	var dangling *DanglingReferenceError
	if errors.As(err, &dangling) {
		return dangling.ID, true
	}
	return "", false
}
