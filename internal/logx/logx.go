// Package logx provides the package-level structured logging hook shared
// by this module's packages (fdbridge, reactor).
//
// Design decision: a package-level global logger, exactly mirroring the
// reference reactor's own approach (eventloop/logging.go's
// SetStructuredLogger / getGlobalLogger): logging is a cross-cutting
// infrastructure concern, every reactor component shares the same
// destination, and a global avoids threading a logger argument through
// every constructor. Where this package differs from the reference is the
// backend: instead of a hand-rolled Logger interface, it wires in the
// logiface facade with stumpy as the default JSON encoder, both real
// dependencies carried by the wider monorepo this module is drawn from.
package logx

import (
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Event is the concrete logiface event type used throughout this module.
type Event = stumpy.Event

// Logger is the shared logger type every package in this module logs
// through.
type Logger = logiface.Logger[*Event]

var global atomic.Pointer[Logger]

// SetLogger installs logger as the package-level logger used by every
// fdbridge/reactor component. Passing nil restores the stumpy-backed
// default on next use.
func SetLogger(logger *Logger) {
	global.Store(logger)
}

// Get returns the current package-level logger, installing the default
// stumpy-backed one whenever none is set.
func Get() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l := stumpy.L.New()
	global.CompareAndSwap(nil, &l)
	return global.Load()
}
