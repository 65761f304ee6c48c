// Package asterr defines the error taxonomy shared across the exchange
// access layer, strategy engine, and orchestrator: ValidationError,
// UnknownSymbolError, TransportError, VenueError, and SignatureError
// Each is a concrete type so callers can discriminate with
// errors.As instead of string matching on messages.
package asterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError signals bad caller input: an unknown transfer
// direction, a quantity at or below the exchange's step size, negative
// capital, and similar synchronous, caller-fixable mistakes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError, wrapped so a %+v format
// verb on the returned error carries a stack trace in development.
func NewValidationError(field, message string) error {
	return errors.WithStack(&ValidationError{Field: field, Message: message})
}

// UnknownSymbolError is raised by the Filter Cache & Formatter when a
// symbol is absent from the relevant market's exchange info.
type UnknownSymbolError struct {
	Symbol string
	Market string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %q on %s market", e.Symbol, e.Market)
}

func NewUnknownSymbolError(symbol, market string) error {
	return errors.WithStack(&UnknownSymbolError{Symbol: symbol, Market: market})
}

// TransportError reports a request that produced no usable venue
// answer: an HTTP non-2xx status (whatever its body), a network failure
// such as a timeout (Status 0), or a 2xx body that is not valid JSON.
// Body holds the response body as received, or the network error text
// when no response arrived; no redaction is applied to it.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: status=%d body=%s", e.Status, e.Body)
}

func NewTransportError(status int, body string) error {
	return errors.WithStack(&TransportError{Status: status, Body: body})
}

// VenueError represents a 2xx response whose JSON body indicates
// rejection by the venue itself (code < 0 in the AsterDex convention).
type VenueError struct {
	Code    int
	Message string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error %d: %s", e.Code, e.Message)
}

func NewVenueError(code int, message string) error {
	return errors.WithStack(&VenueError{Code: code, Message: message})
}

// SignatureError reports a cryptographic signing failure. Its message
// never includes secret material — callers must not interpolate raw
// keys, nonces, or private key bytes into Message.
type SignatureError struct {
	Message string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature error: %s", e.Message)
}

func NewSignatureError(message string) error {
	return errors.WithStack(&SignatureError{Message: message})
}
