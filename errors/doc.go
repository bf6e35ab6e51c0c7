// Package errors provides standardized error handling for the printer
// connectivity core.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or malformed protocol
// data, non-retryable), and Fatal (unrecoverable, stop processing).
//
// This classification enables a Session to make informed decisions about
// reconnects, registration retries, and when to give up and transition to
// CLOSED, without hardcoded error string matching.
//
// # Error Classification
//
// Errors are automatically classified based on their type or content:
//
//   - Transient: transport resets, request timeouts, a busy printer, slot
//     exhaustion (reconnect/retry recommended)
//   - Invalid: malformed frames, checksum mismatches, missing files, empty
//     discovery results (do not retry as-is; surface to the caller)
//   - Fatal: cloud-only printers, a closed session, bad access codes
//     (stop processing, do not reconnect)
//
// The classification system integrates with Go's standard error handling
// patterns, supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	// Return standard error for known conditions
//	if len(found) == 0 {
//	    return errors.ErrDiscoveryEmpty
//	}
//
// Wrap errors with context for debugging:
//
//	// Wrap third-party errors with component context
//	if err := conn.ReadMessage(); err != nil {
//	    return errors.Wrap(err, "Transport", "Receive", "read frame")
//	}
//
// Check classification for retry logic:
//
//	// Make retry decisions based on error class
//	if err := session.invoke(ctx, cmd); err != nil {
//	    if errors.IsTransient(err) {
//	        // Retry with exponential backoff
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	            // retry operation
//	        }
//	    } else if errors.IsFatal(err) {
//	        // Stop reconnecting, move the session to CLOSED
//	        session.close()
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format keeps log lines and operator diagnostics consistent across the
// wire, transport, session, and proxy packages. The Wrap family of functions
// applies this pattern while preserving error classification through the
// chain.
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")  // Preserves original class
//
// # Standard Error Variables
//
// The package provides pre-defined error variables for the printer error-kind
// taxonomy:
//
//   - Discovery: ErrDiscoveryEmpty, ErrUnsupportedMode
//   - Transport: ErrTransportReset, ErrRequestTimeout, ErrSlowConsumer
//   - Session/registration: ErrRegistrationFailed, ErrSlotExhausted, ErrSessionClosed
//   - Protocol/data: ErrProtocolError, ErrChecksumMismatch, ErrFileNotFound
//   - Printer-reported: ErrPrinterBusy (code 1009), ErrFileNotFound (codes
//     1021/9007), ErrUnauthorizedAccess (code 1000), ErrChecksumMismatch
//     (code 9004)
//
// Use these variables instead of creating custom error messages for
// consistency:
//
//	// Good - uses standard variable
//	if code == 1009 {
//	    return errors.ErrPrinterBusy
//	}
//
//	// Avoid - custom error message
//	if code == 1009 {
//	    return errors.New("printer busy")
//	}
//
// # Retry Configuration
//
// The package includes built-in retry support with exponential backoff:
//
//	config := errors.DefaultRetryConfig()
//
//	for attempt := 0; attempt < config.MaxRetries; attempt++ {
//	    if err := operation(); err != nil {
//	        if !config.ShouldRetry(err, attempt) {
//	            return err  // Non-retryable or max attempts reached
//	        }
//	        delay := config.BackoffDelay(attempt)
//	        time.Sleep(delay)
//	        continue
//	    }
//	    return nil  // Success
//	}
//
// The retry configuration integrates with the core's retry package:
//
//	retryConfig := errorConfig.ToRetryConfig()
//	// Use with pkg/retry's Do/DoWithResult
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	// Check error classification
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	// Check for specific standard errors
//	if errors.Is(err, errors.ErrTransportReset) {
//	    // Trigger RECONNECTING
//	}
//
//	// Classification is preserved through error chains
//	wrapped := errors.Wrap(errors.ErrTransportReset, "Session", "readLoop", "receive")
//	if errors.IsTransient(wrapped) {  // true - classification preserved
//	    // Retry logic
//	}
//
// # Context Cancellation
//
// Context errors (context.DeadlineExceeded, context.Canceled) are
// automatically classified as Transient, enabling consistent handling of
// context-based timeouts:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := session.Invoke(ctx, cmd); err != nil {
//	    if errors.IsTransient(err) {
//	        log.Printf("Transient error (retry recommended): %v", err)
//	    }
//	}
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error
// variables are immutable and safe for concurrent access. The
// ClassifiedError type is safe to share across goroutines after creation.
//
// # Architecture Integration
//
// The errors package integrates with other core components:
//
//   - session: classifies transport failures to drive RECONNECTING vs CLOSED
//   - internal/transport: wraps dial/read/write failures as transient
//   - internal/wire: wraps decode failures as invalid (malformed frames)
//   - pkg/retry: consumes RetryConfig.ToRetryConfig() for backoff scheduling
//
// # Design Philosophy
//
// The errors package follows these design principles:
//
//   - Classification over string matching: errors are classified by type first;
//     IsTransient and IsFatal fall back to message patterns only for errors
//     of no known type
//   - Wrapping over replacement: preserve original errors, add context via wrapping
//   - Standards over invention: use Go's error handling idioms (Is/As/Unwrap)
//   - Simplicity over completeness: three classes cover the recovery policy in full
package errors
