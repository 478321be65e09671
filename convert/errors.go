package convert

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedArchitecture is returned for architectures that are
	// recognized but have no conversion yet.
	ErrUnsupportedArchitecture = errors.New("unsupported architecture")
	// ErrUnknownArchitecture is returned for architectures that are not
	// recognized at all.
	ErrUnknownArchitecture = errors.New("unknown architecture")
)

type UnsupportedArchitectureError struct {
	Architecture string
}

func (e *UnsupportedArchitectureError) Error() string {
	return fmt.Sprintf("%s is not supported yet", e.Architecture)
}

func (e *UnsupportedArchitectureError) Is(target error) bool {
	return target == ErrUnsupportedArchitecture
}

// MissingFieldError reports a required config.json key that is absent.
type MissingFieldError struct {
	Architecture string
	Field        string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s config has no attribute %q", e.Architecture, e.Field)
}
