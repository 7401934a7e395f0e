package rtos

import "time"

// kernelOptions holds configuration options for Kernel creation.
type kernelOptions struct {
	tickPeriod             time.Duration
	tickUnit               time.Duration
	preemptive             bool
	strictPriorityOrdering bool
	metricsEnabled         bool
	port                   Port
}

// KernelOption configures a Kernel instance.
type KernelOption interface {
	applyKernel(*kernelOptions)
}

type kernelOptionFunc func(*kernelOptions)

func (f kernelOptionFunc) applyKernel(opts *kernelOptions) { f(opts) }

// WithTickPeriod sets the wall-clock period of the systick source that
// drives SysClock.Tick. A period of zero (the default) disables the
// automatic ticker: tests are expected to call Kernel's clock Tick
// method directly for deterministic timing.
func WithTickPeriod(period time.Duration) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.tickPeriod = period
	})
}

// WithTickUnit sets the wall-clock duration one tick represents, used
// to convert a caller's time.Duration timeout into a tick count for
// the sorted timeout list. Defaults to 1ms.
func WithTickUnit(unit time.Duration) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.tickUnit = unit
	})
}

// WithPreemption enables or disables priority-based preemption: when
// enabled, a thread that makes a higher-priority thread ready (by
// posting a semaphore, unlocking a mutex, ...) yields the CPU to it
// immediately rather than at the next voluntary checkpoint.
func WithPreemption(enabled bool) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.preemptive = enabled
	})
}

// WithStrictPriorityOrdering requires every priority-ordered wait list
// to additionally enforce strict FIFO among threads of equal priority
// (the default already does this; the option exists so callers can
// assert the behaviour is intentional, matching the teacher's
// WithStrictMicrotaskOrdering toggle shape).
func WithStrictPriorityOrdering(enabled bool) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.strictPriorityOrdering = enabled
	})
}

// WithMetrics enables the kernel's lightweight scheduling metrics
// (context switch counters, per-thread stats collection).
func WithMetrics(enabled bool) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.metricsEnabled = enabled
	})
}

// WithPort installs a custom Port implementation (the wakeup primitive
// the idle thread parks on; see Port). Defaults to NewSimulatedPort().
func WithPort(port Port) KernelOption {
	return kernelOptionFunc(func(opts *kernelOptions) {
		opts.port = port
	})
}

// resolveKernelOptions applies KernelOption instances to kernelOptions.
func resolveKernelOptions(opts []KernelOption) kernelOptions {
	cfg := kernelOptions{
		tickUnit:   time.Millisecond,
		preemptive: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyKernel(&cfg)
	}
	return cfg
}
