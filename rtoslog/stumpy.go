package rtoslog

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	rtos "github.com/joeycumines/go-rtos-kernel"
)

var _ rtos.Logger = (*Adapter[*stumpy.Event])(nil)

// NewStumpy builds an Adapter backed by stumpy, the logiface backend
// named in the kernel's domain stack: a dependency-free, allocation-
// conscious JSON event writer, suitable for hosted (non-embedded)
// deployments that want structured logs without pulling in zerolog,
// logrus, or slog.
func NewStumpy(w io.Writer, minLevel rtos.LogLevel) *Adapter[*stumpy.Event] {
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](toLogifaceLevel(minLevel)),
	)
	return New(logger)
}
