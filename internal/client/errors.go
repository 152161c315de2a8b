package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the normalized failure taxonomy for calls to the lookup service.
type Kind string

const (
	// KindInvalidRequest means the request could not be composed.
	KindInvalidRequest Kind = "invalid_request"

	// KindValidation means a user-supplied field was rejected before sending.
	KindValidation Kind = "validation"

	// KindNetwork means the transport failed or the attempt timed out.
	KindNetwork Kind = "network"

	// KindServer means the service answered with a non-2xx status.
	KindServer Kind = "server"

	// KindDecoding means a 2xx body did not match the expected shape.
	KindDecoding Kind = "decoding"

	// KindSSLPinning means the server's certificate was not trusted.
	KindSSLPinning Kind = "ssl_pinning"

	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// ErrUnauthenticated is returned by token sources when no usable identity
// token exists.
var ErrUnauthenticated = errors.New("not signed in")

// ErrPinMismatch is returned from the TLS handshake when a pinned host
// presents a certificate chain with no pinned key.
var ErrPinMismatch = errors.New("certificate does not match pinned keys")

// Error wraps a failed call with its normalized kind.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Err        error
	Retryable  bool
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindServer {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Err:       err,
		Retryable: kind == KindNetwork || kind == KindSSLPinning,
	}
}

func serverError(op string, status int) *Error {
	return &Error{
		Kind:       KindServer,
		Op:         op,
		StatusCode: status,
		Message:    http.StatusText(status),
		Retryable:  status >= http.StatusInternalServerError,
	}
}

// KindOf extracts the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// StatusCode returns the HTTP status carried by a server error, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindServer {
		return e.StatusCode
	}
	return 0
}

// IsSecurityEvent reports whether err came from a trust failure. These are
// logged distinctly from ordinary network failures.
func IsSecurityEvent(err error) bool {
	return KindOf(err) == KindSSLPinning
}

// UserMessage renders err as text suitable for end users. Raw transport
// errors are never shown.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthenticated) {
		return "Your session has expired. Please sign in again."
	}
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Please try again."
	}
	switch e.Kind {
	case KindInvalidRequest:
		return "Unable to connect to the server."
	case KindValidation:
		return e.Message
	case KindNetwork:
		return "Network connection failed. Please check your internet connection and try again."
	case KindSSLPinning:
		return "A secure connection to the server could not be established."
	case KindDecoding:
		return "Unable to process the server response. Please try again."
	case KindServer:
		switch {
		case e.StatusCode >= http.StatusInternalServerError:
			return "The server is temporarily unavailable. Please try again later."
		case e.StatusCode == http.StatusUnauthorized:
			return "Your session has expired. Please sign in again."
		case e.StatusCode == http.StatusNotFound:
			return "The requested information could not be found."
		default:
			return fmt.Sprintf("An error occurred (Code: %d). Please try again.", e.StatusCode)
		}
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// classifyTransport maps a round-trip failure onto the taxonomy.
func classifyTransport(op string, err error) *Error {
	if isTrustFailure(err) {
		return newError(KindSSLPinning, op, "server certificate not trusted", err)
	}
	return newError(KindNetwork, op, "request failed", err)
}

func isTrustFailure(err error) bool {
	if errors.Is(err, ErrPinMismatch) {
		return true
	}
	var (
		verifyErr    *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		constraintEr x509.ConstraintViolationError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &constraintEr)
}
