//go:build linux

// File: reactor/general_linux.go
// Author: momentics <momentics@gmail.com>
//
// Epoll-based ioDriver. The sentinel timer and the cross-thread wake fd
// are registered with epoll exactly like any other fd, matching the
// original proactor's treatment of its wake_fd as just another
// poll-add target rather than a special case.

package reactor

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const maxEpollBatch = 128

type generalDriver struct {
	epfd    int
	timerFd int
	wakeFd  int

	mu        sync.Mutex
	callbacks map[int32]FDCallback
	armed     int64 // last deadline passed to ArmSentinel; 0 == disarmed
}

func newGeneralDriver() (*generalDriver, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	timerFd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		unix.Close(timerFd)
		return nil, err
	}

	d := &generalDriver{
		epfd:      epfd,
		timerFd:   timerFd,
		wakeFd:    wakeFd,
		callbacks: make(map[int32]FDCallback),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, timerFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(timerFd)}); err != nil {
		d.Close()
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *generalDriver) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	d.mu.Lock()
	d.callbacks[int32(fd)] = cb
	d.mu.Unlock()
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, int(fd), &unix.EpollEvent{Events: e, Fd: int32(fd)})
}

func (d *generalDriver) Unregister(fd uintptr) error {
	d.mu.Lock()
	delete(d.callbacks, int32(fd))
	d.mu.Unlock()
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (d *generalDriver) ArmSentinel(deadlineNs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if deadlineNs == d.armed {
		// Anti-livelock rule: re-arming to the same deadline is a no-op.
		return nil
	}
	d.armed = deadlineNs
	var spec unix.ItimerSpec
	if deadlineNs != 0 {
		var now unix.Timespec
		if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &now); err != nil {
			return err
		}
		nowNs := now.Sec*1_000_000_000 + now.Nsec
		delta := deadlineNs - nowNs
		if delta <= 0 {
			delta = 1
		}
		spec.Value = unix.NsecToTimespec(delta)
	}
	return unix.TimerfdSettime(d.timerFd, 0, &spec, nil)
}

func (d *generalDriver) Notify() error {
	one := uint64(1)
	buf := (*[8]byte)(unsafe.Pointer(&one))
	_, err := unix.Write(d.wakeFd, buf[:])
	if err == unix.EAGAIN {
		return nil // already has a pending wakeup
	}
	return err
}

func (d *generalDriver) SubmitRead(fd uintptr, buf []byte, done func(n int, err error)) {
	err := d.Register(fd, EventRead, func(fd uintptr, _ FDEventType) {
		_ = d.Unregister(fd)
		n, err := unix.Read(int(fd), buf)
		done(n, err)
	})
	if err != nil {
		done(0, err)
	}
}

func (d *generalDriver) SubmitWrite(fd uintptr, buf []byte, done func(n int, err error)) {
	err := d.Register(fd, EventWrite, func(fd uintptr, _ FDEventType) {
		_ = d.Unregister(fd)
		n, err := unix.Write(int(fd), buf)
		done(n, err)
	})
	if err != nil {
		done(0, err)
	}
}

func (d *generalDriver) SubmitAccept(fd uintptr, done func(newFd int, err error)) {
	err := d.Register(fd, EventRead, func(fd uintptr, _ FDEventType) {
		_ = d.Unregister(fd)
		nfd, _, aerr := unix.Accept(int(fd))
		done(nfd, aerr)
	})
	if err != nil {
		done(0, err)
	}
}

func (d *generalDriver) Wait(timeoutMs int) (int, error) {
	var events [maxEpollBatch]unix.EpollEvent
	n, err := unix.EpollWait(d.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	handled := 0
	for i := 0; i < n; i++ {
		fd := events[i].Fd
		switch fd {
		case int32(d.timerFd):
			var buf [8]byte
			unix.Read(d.timerFd, buf[:])
		case int32(d.wakeFd):
			var buf [8]byte
			unix.Read(d.wakeFd, buf[:])
		default:
			d.mu.Lock()
			cb := d.callbacks[fd]
			d.mu.Unlock()
			if cb == nil {
				continue
			}
			var et FDEventType
			if events[i].Events&unix.EPOLLIN != 0 {
				et |= EventRead
			}
			if events[i].Events&unix.EPOLLOUT != 0 {
				et |= EventWrite
			}
			if events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				et |= EventError
			}
			func() {
				defer func() { recover() }()
				cb(uintptr(fd), et)
			}()
			handled++
		}
	}
	return handled, nil
}

func (d *generalDriver) Close() error {
	unix.Close(d.timerFd)
	unix.Close(d.wakeFd)
	return unix.Close(d.epfd)
}
