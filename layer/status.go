package layer

import (
	"errors"
	"fmt"
)

// StatusCode classifies the state of a layer
type StatusCode int

const (
	OK StatusCode = iota
	// ResourceUnavailable is the state of a layer that is not open (yet)
	ResourceUnavailable
	// ServiceUnavailable means the source of the layer could not be loaded
	ServiceUnavailable
	// ConfigurationError means the layer options are missing or invalid
	ConfigurationError
)

var (
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrConfiguration       = errors.New("configuration error")
)

func (c StatusCode) String() string {
	switch c {
	case OK:
		return "OK"
	case ResourceUnavailable:
		return "ResourceUnavailable"
	case ServiceUnavailable:
		return "ServiceUnavailable"
	case ConfigurationError:
		return "ConfigurationError"
	default:
		return fmt.Sprintf("StatusCode(%d)", int(c))
	}
}

// Status is the outcome of opening a layer. Errors are terminal, opening is not retried.
type Status struct {
	Code    StatusCode
	Message string
}

func StatusOK() Status {
	return Status{Code: OK}
}

func StatusError(code StatusCode, message string) Status {
	return Status{Code: code, Message: message}
}

func (s Status) OK() bool {
	return s.Code == OK
}

// Err returns nil for an OK status, otherwise an error wrapping one of the Err* sentinels
func (s Status) Err() error {
	var sentinel error
	switch s.Code {
	case OK:
		return nil
	case ResourceUnavailable:
		sentinel = ErrResourceUnavailable
	case ServiceUnavailable:
		sentinel = ErrServiceUnavailable
	default:
		sentinel = ErrConfiguration
	}
	if s.Message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, s.Message)
}

func (s Status) String() string {
	if s.Message == "" {
		return s.Code.String()
	}
	return s.Code.String() + ": " + s.Message
}
