// Package apperr carries the failure taxonomy used to decide between retrying a
// job and failing it for good. Kinds are assigned where an external call is
// made; callers further up only inspect the kind.
package apperr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindPermissionDenied
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on a later
// attempt. Unknown failures are not retried.
func (k Kind) Retryable() bool {
	return k == KindTransient
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Validation(op string, err error) error       { return E(KindValidation, op, err) }
func NotFound(op string, err error) error         { return E(KindNotFound, op, err) }
func PermissionDenied(op string, err error) error { return E(KindPermissionDenied, op, err) }
func Transient(op string, err error) error        { return E(KindTransient, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// transientStatus lists the HTTP statuses that are worth another attempt.
var transientStatus = map[int]bool{
	408: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
	520: true, 521: true, 522: true, 523: true, 524: true,
}

// ClassifyHTTPStatus maps a non-success HTTP status to a kind. Any 5xx is
// transient; 4xx outside the transient set is permanent.
func ClassifyHTTPStatus(code int) Kind {
	switch {
	case transientStatus[code] || code >= 500:
		return KindTransient
	case code == 404 || code == 410:
		return KindNotFound
	case code == 401 || code == 403:
		return KindPermissionDenied
	default:
		return KindUnknown
	}
}

// ClassifyNet classifies errors returned by network calls: timeouts, resets,
// refused connections and TLS handshake failures are transient.
func ClassifyNet(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return KindTransient
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindTransient
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return KindTransient
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransient
	}
	return KindUnknown
}
