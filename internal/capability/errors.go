package capability

import (
	"errors"
	"fmt"
)

// ErrRegistrySealed is returned by Register once the registry is sealed.
var ErrRegistrySealed = errors.New("capability registry is sealed")

// DuplicateCapabilityError indicates a name was registered twice.
type DuplicateCapabilityError struct {
	Name string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("capability %q is already registered", e.Name)
}

// NewDuplicateCapabilityError creates a new duplicate capability error.
func NewDuplicateCapabilityError(name string) *DuplicateCapabilityError {
	return &DuplicateCapabilityError{Name: name}
}

// UnknownCapabilityError indicates a lookup of an unregistered name.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability %q", e.Name)
}

// NewUnknownCapabilityError creates a new unknown capability error.
func NewUnknownCapabilityError(name string) *UnknownCapabilityError {
	return &UnknownCapabilityError{Name: name}
}
