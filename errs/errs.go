// Package errs provides the classified error type returned by the trader client.
//
// Every failure surfaced to callers is an *Error carrying a Kind. Trade errors
// (the server's 499 sentinel or a nonzero envelope status) also carry the
// server's numeric error code and message.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies the failure category.
type Kind int

const (
	// KindUnknown is never produced by this module; it is the zero value.
	KindUnknown Kind = iota
	// KindTransport covers connection failures, timeouts and unexpected HTTP statuses.
	KindTransport
	// KindTrade is an application-level rejection reported by the server.
	KindTrade
	// KindBuyLimit is a Trade error caused by buying at or above the up-limit price.
	KindBuyLimit
	// KindSellLimit is a Trade error caused by selling at or below the down-limit price.
	KindSellLimit
	// KindPrecondition is a local validation failure detected before any network call.
	KindPrecondition
	// KindConstruction means a client could not be brought into a usable state.
	KindConstruction
	// KindDecode means a payload declared as JSON could not be decoded.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTrade:
		return "trade"
	case KindBuyLimit:
		return "buy_limit"
	case KindSellLimit:
		return "sell_limit"
	case KindPrecondition:
		return "precondition"
	case KindConstruction:
		return "construction"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Server error codes with a dedicated Kind.
const (
	CodeBuyLimit  = 4001
	CodeSellLimit = 4002
)

// KindForCode maps a server error code onto a Trade kind.
func KindForCode(code int) Kind {
	switch code {
	case CodeBuyLimit:
		return KindBuyLimit
	case CodeSellLimit:
		return KindSellLimit
	default:
		return KindTrade
	}
}

// Error is the classified error value.
type Error struct {
	Kind       Kind
	Code       int
	Message    string
	HTTPStatus int
	Command    string
	RequestID  string
	Body       string

	cause error
}

// Sentinels for errors.Is. Matching is by Kind; the Trade sentinel also
// matches its BuyLimit and SellLimit specializations.
var (
	ErrTransport    = &Error{Kind: KindTransport}
	ErrTrade        = &Error{Kind: KindTrade}
	ErrBuyLimit     = &Error{Kind: KindBuyLimit}
	ErrSellLimit    = &Error{Kind: KindSellLimit}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrConstruction = &Error{Kind: KindConstruction}
	ErrDecode       = &Error{Kind: KindDecode}
)

// Option configures an Error.
type Option func(*Error)

// New constructs an error of the given kind.
func New(kind Kind, opts ...Option) *Error {
	e := &Error{Kind: kind}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Trade constructs a Trade error, specialized by code when it names a price-limit violation.
func Trade(code int, message string, opts ...Option) *Error {
	e := New(KindForCode(code), opts...)
	e.Code = code
	e.Message = message
	return e
}

// Precondition constructs a local validation error.
func Precondition(format string, args ...any) *Error {
	return New(KindPrecondition, WithMessage(fmt.Sprintf(format, args...)))
}

// WithMessage sets the human-readable message.
func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

// WithHTTP records the HTTP status of the response.
func WithHTTP(status int) Option {
	return func(e *Error) { e.HTTPStatus = status }
}

// WithCommand records the command the error belongs to.
func WithCommand(cmd string) Option {
	return func(e *Error) { e.Command = strings.TrimSpace(cmd) }
}

// WithRequestID records the correlation id sent with the request.
func WithRequestID(id string) Option {
	return func(e *Error) { e.RequestID = id }
}

// WithBody keeps the raw response body.
func WithBody(body string) Option {
	return func(e *Error) { e.Body = body }
}

// WithCause sets the underlying error.
func WithCause(err error) Option {
	return func(e *Error) { e.cause = err }
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Command != "" {
		b.WriteString(" ")
		b.WriteString(e.Command)
	}
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " http=%d", e.HTTPStatus)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindTrade && e.IsTrade()
}

// IsTrade reports whether the error is a Trade error or one of its specializations.
func (e *Error) IsTrade() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindTrade, KindBuyLimit, KindSellLimit:
		return true
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown if err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the server error code carried by err, if any.
func CodeOf(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.IsTrade() {
		return e.Code, true
	}
	return 0, false
}

// IsTimeout reports whether err is a Transport error caused by a deadline.
func IsTimeout(err error) bool {
	if KindOf(err) != KindTransport {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
