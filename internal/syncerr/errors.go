package syncerr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrAuth            = errors.New("auth error")
	ErrRateLimit       = errors.New("rate limit error")
	ErrTransientServer = errors.New("transient server error")
	ErrValidation      = errors.New("validation error")
	ErrWrite           = errors.New("write error")
)

type Error struct {
	Kind    error
	Service string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("sync error")
	}
	if e.Service != "" {
		b.WriteString(" [")
		b.WriteString(e.Service)
		b.WriteString("]")
	}
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func New(kind error, service, op string, err error) error {
	return &Error{Kind: kind, Service: service, Op: op, Err: err}
}

func Configuration(service, format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Service: service, Err: fmt.Errorf(format, args...)}
}

func Auth(service, op string, err error) error {
	return &Error{Kind: ErrAuth, Service: service, Op: op, Err: err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Err: fmt.Errorf(format, args...)}
}

func Write(op string, err error) error {
	return &Error{Kind: ErrWrite, Op: op, Err: err}
}

// Fatal reports whether err should stop the remaining resources of a service run.
func Fatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAuth)
}

// KindName is the short label used in logs and API payloads.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimit):
		return "rate_limit"
	case errors.Is(err, ErrTransientServer):
		return "transient_server"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrWrite):
		return "write"
	default:
		return "error"
	}
}
