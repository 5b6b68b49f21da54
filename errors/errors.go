// Package errors provides error classification and the pipeline error taxonomy
// shared by the MAVLink-to-CoT bridge.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass decides what the caller does next with a failure.
type ErrorClass int

const (
	ErrorTransient ErrorClass = iota // skip this item or retry
	ErrorInvalid                     // bad input, drop it
	ErrorFatal                       // abort the operation
)

func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyStarted = errors.New("already running")
	ErrAlreadyStopped = errors.New("already stopped")
	ErrConnectionLost = errors.New("connection lost")
	ErrInvalidData    = errors.New("invalid data format")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ClassifiedError carries a class plus where the failure happened.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Sentinels with a fixed class when no ClassifiedError is in the chain.
var (
	fatalSentinels     = []error{ErrInvalidConfig, ErrBindFailed, ErrHandshakeTimeout, ErrEncoding}
	invalidSentinels   = []error{ErrInvalidData}
	transientSentinels = []error{
		ErrConnectionLost, ErrReceiveTimeout, ErrTransmission,
		context.DeadlineExceeded, context.Canceled,
	}
	transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable"}
)

func matchesAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// explicitClass returns the class of the outermost ClassifiedError in the chain.
func explicitClass(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient reports whether err is worth skipping or retrying. Unclassified
// errors whose text looks like a network hiccup count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorTransient
	}
	if matchesAny(err, transientSentinels) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorFatal
	}
	return matchesAny(err, fatalSentinels)
}

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := explicitClass(err); ok {
		return class == ErrorInvalid
	}
	if _, ok := AsValidation(err); ok {
		return true
	}
	return matchesAny(err, invalidSentinels)
}

// Classify returns the class of err. nil and unknown errors are transient.
func Classify(err error) ErrorClass {
	if class, ok := explicitClass(err); ok {
		return class
	}
	switch {
	case err == nil:
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap formats err as "component.method: action failed: err".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient is Wrap plus ErrorTransient.
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal is Wrap plus ErrorFatal.
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid is Wrap plus ErrorInvalid.
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}
