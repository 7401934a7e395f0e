//go:build darwin

package rtos

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePort backs Port with a kqueue EVFILT_USER trigger, the Darwin
// doorbell the teacher's wake path uses, repurposed to wake the idle
// thread rather than an I/O poller.
type kqueuePort struct {
	kq int
}

// NewDoorbellPort returns a Port backed by a real kqueue user event,
// for deployments that want the idle thread parked in an actual
// blocking syscall rather than a Go channel.
func NewDoorbellPort() (Port, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, newErr("NewDoorbellPort", StatusInvalidArgument, err)
	}
	changes := []unix.Kevent_t{{
		Ident:  1,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		_ = unix.Close(kq)
		return nil, newErr("NewDoorbellPort", StatusInvalidArgument, err)
	}
	return &kqueuePort{kq: kq}, nil
}

func (p *kqueuePort) WaitForWakeup(timeout time.Duration) {
	events := make([]unix.Kevent_t, 1)
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _ = unix.Kevent(p.kq, nil, events, ts)
}

func (p *kqueuePort) Notify() {
	changes := []unix.Kevent_t{{
		Ident:  1,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}
	_, _ = unix.Kevent(p.kq, changes, nil, nil)
}

func (p *kqueuePort) Close() error {
	return unix.Close(p.kq)
}
