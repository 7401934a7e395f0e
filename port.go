package rtos

import "time"

// Port is the CPU port collaborator: the narrow surface the kernel
// needs from whatever backs its idle-thread wakeup. A real
// microcontroller port would wire this to WFI/WFE plus the systick
// interrupt; a hosted process wires it to a doorbell file descriptor
// (eventfd on Linux, kqueue EVFILT_USER on Darwin) or, in tests, to a
// bare channel.
//
// Port deliberately knows nothing about threads, priorities, or the
// ready list: it is purely "let the idle thread sleep until something
// interesting might have happened", mirroring the narrow wake-pipe
// role the teacher's FastPoller plays for Loop.Submit, without any of
// the general I/O readiness polling that role also carries (out of
// scope here; see the "POSIX I/O layer" non-goal).
type Port interface {
	// WaitForWakeup blocks until Notify is called or timeout elapses
	// (a timeout of 0 waits forever), whichever comes first. It is
	// always safe to return spuriously early; callers recheck their
	// own condition.
	WaitForWakeup(timeout time.Duration)
	// Notify wakes any goroutine currently blocked in WaitForWakeup.
	// Safe to call from handler mode and to call when nobody is
	// waiting (the notification is not lost, but also not queued
	// beyond a single pending wakeup).
	Notify()
	// Close releases any OS resources the port holds.
	Close() error
}

// simulatedPort backs Port with a single buffered channel, sufficient
// for hosted tests and non-microcontroller deployments that don't need
// a real doorbell fd.
type simulatedPort struct {
	wake chan struct{}
}

// NewSimulatedPort returns a Port implementation backed by a Go
// channel, the default used when no platform-specific doorbell (see
// port_linux.go, port_darwin.go) is requested via WithPort.
func NewSimulatedPort() Port {
	return &simulatedPort{wake: make(chan struct{}, 1)}
}

func (p *simulatedPort) WaitForWakeup(timeout time.Duration) {
	if timeout <= 0 {
		<-p.wake
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.wake:
	case <-t.C:
	}
}

func (p *simulatedPort) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *simulatedPort) Close() error { return nil }
