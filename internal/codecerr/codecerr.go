// Package codecerr defines the typed error kinds every reader/writer
// in this module surfaces, so callers can errors.Is/errors.As against
// a stable kind while the message text still names the offending
// value.
package codecerr

import "fmt"

// Kind classifies a codec failure.
type Kind int

const (
	InvalidMagic Kind = iota
	UnsupportedVariant
	MalformedHeader
	Truncated
	ChannelMismatch
	DecodeFault
	GainMapMissing
	NumericDomain
)

func (k Kind) String() string {
	switch k {
	case InvalidMagic:
		return "InvalidMagic"
	case UnsupportedVariant:
		return "UnsupportedVariant"
	case MalformedHeader:
		return "MalformedHeader"
	case Truncated:
		return "Truncated"
	case ChannelMismatch:
		return "ChannelMismatch"
	case DecodeFault:
		return "DecodeFault"
	case GainMapMissing:
		return "GainMapMissing"
	case NumericDomain:
		return "NumericDomain"
	default:
		return "Unknown"
	}
}

// Error is a codec failure tagged with a Kind, so callers can match on
// it with errors.Is(err, codecerr.Sentinel(kind)) via Is, while %v/.Error()
// still renders the single-sentence message the spec requires.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, wrapped error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: wrapped}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is lets errors.Is(err, codecerr.Sentinel(codecerr.InvalidMagic)) work
// by comparing kinds when the target is itself a *Error; a bare Kind is
// not an error and cannot be an errors.Is target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel returns a bare *Error usable as an errors.Is target for a
// given kind, e.g. errors.Is(err, codecerr.Sentinel(codecerr.Truncated)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
