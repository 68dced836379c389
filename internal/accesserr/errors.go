// Package accesserr holds the error taxonomy shared by the resource store
// and the access toolkit.
package accesserr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrPolicyViolation        = errors.New("policy violation")
	ErrConflict               = errors.New("conflict")
	ErrConfigurationExhausted = errors.New("configuration exhausted")
)

// Error carries a human-readable message together with one of the sentinel
// kinds above. The message is what ends up in a tool result, so it is
// returned verbatim by Error().
type Error struct {
	Kind error
	Msg  string
}

// New builds an Error of the given kind with a formatted message.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// KindOf returns the sentinel kind of err, or nil when err is not part of the
// taxonomy.
func KindOf(err error) error {
	for _, k := range []error{ErrNotFound, ErrInvalidArgument, ErrPolicyViolation, ErrConflict, ErrConfigurationExhausted} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Label returns a short metric-friendly name for err's kind.
func Label(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrPolicyViolation:
		return "policy_violation"
	case ErrConflict:
		return "conflict"
	case ErrConfigurationExhausted:
		return "configuration_exhausted"
	case nil:
		if err == nil {
			return "ok"
		}
	}
	return "internal"
}
