// Package errors provides standardized error handling for the printer
// connectivity core: error classification, the typed error-kind taxonomy
// from the error handling design, and helpers for consistent wrapping and
// classification across wire, transport, session, and proxy code.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielcherubini/elegoo-printercore/pkg/retry"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
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

// Sentinel errors for the error-kind taxonomy.
var (
	// ErrDiscoveryEmpty means no printers answered a discovery probe.
	ErrDiscoveryEmpty = errors.New("discovery: no printers responded")
	// ErrUnsupportedMode means the printer is reachable only in cloud/RTM
	// mode, which this core refuses to speak (LAN-only is mandatory).
	ErrUnsupportedMode = errors.New("unsupported mode: printer is cloud-only")
	// ErrTransportReset means the underlying socket closed or timed out.
	ErrTransportReset = errors.New("transport reset")
	// ErrRegistrationFailed is a generic CC2 registration failure.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrSlotExhausted means the printer reported "too many clients".
	ErrSlotExhausted = errors.New("printer connection slots exhausted")
	// ErrRequestTimeout means no response arrived within the deadline.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrProtocolError means a malformed frame or unknown envelope shape.
	ErrProtocolError = errors.New("protocol error: malformed frame")
	// ErrPrinterBusy corresponds to printer error code 1009.
	ErrPrinterBusy = errors.New("printer busy")
	// ErrFileNotFound corresponds to printer error codes 1021 and 9007.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnauthorizedAccess corresponds to printer error code 1000.
	ErrUnauthorizedAccess = errors.New("unauthorized: bad access code")
	// ErrChecksumMismatch corresponds to printer error code 9004.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrSlowConsumer means a proxy downstream fell behind and was evicted.
	ErrSlowConsumer = errors.New("slow consumer: downstream evicted")
	// ErrSessionClosed means the session was shut down; terminal.
	ErrSessionClosed = errors.New("session closed")
	// ErrAlreadyStopped means the component was already stopped/closed.
	ErrAlreadyStopped = errors.New("component already stopped")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	// Check for known transient error kinds
	if errors.Is(err, ErrTransportReset) ||
		errors.Is(err, ErrRequestTimeout) ||
		errors.Is(err, ErrPrinterBusy) ||
		errors.Is(err, ErrSlotExhausted) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection",
		"network",
		"temporary",
		"unavailable",
		"busy",
		"retry",
		"reset",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	// Check for known fatal error kinds
	if errors.Is(err, ErrUnsupportedMode) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, ErrUnauthorizedAccess) {
		return true
	}

	// Check error message for fatal patterns
	errStr := strings.ToLower(err.Error())
	fatalPatterns := []string{
		"fatal",
		"panic",
		"closed",
		"unsupported",
		"unauthorized",
	}

	for _, pattern := range fatalPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input or a malformed frame
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	// Check for known invalid error kinds
	if errors.Is(err, ErrProtocolError) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrDiscoveryEmpty) ||
		errors.Is(err, ErrRegistrationFailed) {
		return true
	}

	return false
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// RetryConfig defines configuration for retry operations
type RetryConfig struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []error
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		BackoffFactor:   2.0,
		RetryableErrors: nil, // Empty list means retry all transient errors
	}
}

// ShouldRetry determines if an error should be retried based on config
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}

	// Check if error is transient
	if !IsTransient(err) {
		return false
	}

	// Check specific retryable errors if configured
	if len(rc.RetryableErrors) > 0 {
		for _, retryableErr := range rc.RetryableErrors {
			if errors.Is(err, retryableErr) {
				return true
			}
		}
		return false
	}

	return true
}

// ToRetryConfig converts the errors package RetryConfig to the retry
// package's Config type, so callers can pass an errors.RetryConfig straight
// into retry.Do/DoWithResult.
//
// The conversion adds 1 to MaxRetries (converting "additional attempts" to
// "total attempts") and enables jitter by default for production resilience.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1, // MaxRetries is additional attempts beyond first
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true, // Enable jitter for production use
	}
}

// BackoffDelay calculates the delay for a retry attempt using framework logic
func (rc RetryConfig) BackoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return rc.InitialDelay
	}

	// Use framework calculation for consistency
	delay := rc.InitialDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rc.BackoffFactor)
		if delay > rc.MaxDelay {
			delay = rc.MaxDelay
			break
		}
	}

	return delay
}
