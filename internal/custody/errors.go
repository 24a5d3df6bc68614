package custody

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedPattern is returned when a template apply names a
	// pattern type the generator does not materialize.
	ErrUnsupportedPattern = errors.New("unsupported pattern type")

	// ErrInsufficientFamilyMembers is returned when template apply needs
	// two parents and the family has fewer.
	ErrInsufficientFamilyMembers = errors.New("family needs at least two members")
)

// ValidationError marks malformed caller input (dates, times).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a caller-input problem.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
