// Package rtoslog adapts the rtos package's [rtos.Logger] interface
// onto a github.com/joeycumines/logiface pipeline, so a caller that
// already has a structured logging stack (stumpy, zerolog, logrus,
// slog, ...) can point a Kernel at it instead of the dependency-free
// rtos.DefaultLogger. The rtos core package itself never imports
// logiface directly, keeping that dependency optional.
package rtoslog

import (
	"github.com/joeycumines/logiface"

	rtos "github.com/joeycumines/go-rtos-kernel"
)

// Adapter wraps a *logiface.Logger[E] (for any Event type the caller's
// chosen logiface backend provides, e.g. *stumpy.Event) as an
// rtos.Logger.
type Adapter[E logiface.Event] struct {
	logger *logiface.Logger[E]
}

// New wraps logger as an rtos.Logger. A nil logger behaves as a no-op
// sink, matching rtos.NoOpLogger.
func New[E logiface.Event](logger *logiface.Logger[E]) *Adapter[E] {
	return &Adapter[E]{logger: logger}
}

// IsEnabled reports whether level would actually be written, mirroring
// the threshold check logiface.Logger.Build performs internally.
func (a *Adapter[E]) IsEnabled(level rtos.LogLevel) bool {
	if a == nil || a.logger == nil {
		return false
	}
	return toLogifaceLevel(level) <= a.logger.Level()
}

// Log translates entry into a logiface Builder chain and writes it.
func (a *Adapter[E]) Log(entry rtos.LogEntry) {
	if a == nil || a.logger == nil {
		return
	}
	b := a.logger.Build(toLogifaceLevel(entry.Level))
	if !b.Enabled() {
		return
	}
	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	if entry.Kernel != "" {
		b = b.Str("kernel", entry.Kernel)
	}
	if entry.Thread != "" {
		b = b.Str("thread", entry.Thread)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	if !entry.Timestamp.IsZero() {
		b = b.Time("ts", entry.Timestamp)
	}
	b.Log(entry.Message)
}

// toLogifaceLevel maps the kernel's four-level scheme onto logiface's
// syslog-derived Level, using the same mapping for every logiface
// backend (stumpy, zerolog, logrus, slog, ...) regardless of which one
// the caller ultimately configured via logiface.Option[E].
func toLogifaceLevel(level rtos.LogLevel) logiface.Level {
	switch level {
	case rtos.LogDebug:
		return logiface.LevelDebug
	case rtos.LogInfo:
		return logiface.LevelInformational
	case rtos.LogWarn:
		return logiface.LevelWarning
	case rtos.LogError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
