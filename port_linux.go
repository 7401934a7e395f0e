//go:build linux

package rtos

import (
	"time"

	"golang.org/x/sys/unix"
)

// eventfdPort backs Port with a Linux eventfd, the same doorbell
// primitive the teacher's wake path uses for Loop.Submit, repurposed
// here to wake the kernel's idle thread instead of an I/O poller.
type eventfdPort struct {
	fd int
}

// NewDoorbellPort returns a Port backed by a real eventfd, for
// deployments that want the idle thread parked in an actual blocking
// syscall (poll on the fd) rather than a Go channel.
func NewDoorbellPort() (Port, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, newErr("NewDoorbellPort", StatusInvalidArgument, err)
	}
	return &eventfdPort{fd: fd}, nil
}

func (p *eventfdPort) WaitForWakeup(timeout time.Duration) {
	pfd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	ms := -1
	if timeout > 0 {
		ms = int(timeout / time.Millisecond)
		if ms <= 0 {
			ms = 1
		}
	}
	_, _ = unix.Poll(pfd, ms)
	p.drain()
}

func (p *eventfdPort) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (p *eventfdPort) Notify() {
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(p.fd, buf[:])
}

func (p *eventfdPort) Close() error {
	return unix.Close(p.fd)
}
