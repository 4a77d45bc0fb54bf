// Package hlog carries the package-wide logger used for optional,
// opt-in structured diagnostics (block offsets, compression choice,
// detected container layout). It is silent by default.
package hlog

import (
	"io"

	"github.com/rs/zerolog"
)

// L is the active logger. Disabled (writes to io.Discard at a level
// above Trace) until SetLogger is called.
var L = zerolog.New(io.Discard).Level(zerolog.Disabled)

// SetLogger installs the logger an embedding application wants this
// library to use for Debug/Trace diagnostics.
func SetLogger(logger zerolog.Logger) {
	L = logger
}
