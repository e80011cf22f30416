//go:build linux

// File: reactor/uring_linux.go
// Author: momentics <momentics@gmail.com>
//
// io_uring-based ioDriver built on github.com/godzie44/go-uring, grounded
// on its echo-server example: Accept/Recv/Send ops queued with
// QueueSQE(op, flags, userData), a blocking Submit+WaitCQEvents cycle, and
// PeekCQEventBatch draining completions 32 at a time, matching the
// original proactor's io_uring_submit / io_uring_wait_cqe_nr /
// io_uring_peek_batch_cqe loop. The sentinel timer and cross-thread wake
// fd are still plain timerfd/eventfd descriptors (as in the original),
// polled here via single-shot Recv submissions rather than epoll.

package reactor

import (
	"sync"
	"unsafe"

	"github.com/godzie44/go-uring/uring"
	"golang.org/x/sys/unix"
)

// iosqeIOLink is IOSQE_IO_LINK from the kernel uapi; chains this SQE to
// the next one so the next op only starts once this one completes. Used
// when Config.LinkedSQE requests fused poll+data submissions.
const iosqeIOLink uint8 = 1 << 2

const uringBatch = 32

type pendingOp struct {
	done func(n int, err error)
}

type uringDriver struct {
	ring   *uring.Ring
	linked bool

	timerFd int
	wakeFd  int
	timerBuf [8]byte
	wakeBuf  [8]byte

	mu      sync.Mutex
	udata   uint64
	pending map[uint64]pendingOp
	armed   int64
}

func newURingDriver(depth uint32, linked bool) (*uringDriver, error) {
	ring, err := uring.New(depth)
	if err != nil {
		return nil, err
	}
	timerFd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		ring.Close()
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		ring.Close()
		unix.Close(timerFd)
		return nil, err
	}
	d := &uringDriver{
		ring:    ring,
		linked:  linked,
		timerFd: timerFd,
		wakeFd:  wakeFd,
		pending: make(map[uint64]pendingOp),
	}
	d.rearmTimerRecv()
	d.rearmWakeRecv()
	return d, nil
}

func (d *uringDriver) nextUData() uint64 {
	d.mu.Lock()
	d.udata++
	id := d.udata
	d.mu.Unlock()
	return id
}

func (d *uringDriver) armRecv(fd uintptr, buf []byte, done func(n int, err error)) {
	id := d.nextUData()
	op := uring.Recv(fd, buf, 0)
	d.mu.Lock()
	d.pending[id] = pendingOp{done: done}
	d.mu.Unlock()
	var flags uint8
	if d.linked {
		flags = iosqeIOLink
	}
	_ = d.ring.QueueSQE(op, flags, id)
}

func (d *uringDriver) rearmTimerRecv() {
	d.armRecv(uintptr(d.timerFd), d.timerBuf[:], func(n int, err error) {
		d.rearmTimerRecv()
	})
}

func (d *uringDriver) rearmWakeRecv() {
	d.armRecv(uintptr(d.wakeFd), d.wakeBuf[:], func(n int, err error) {
		d.rearmWakeRecv()
	})
}

// Register is not used by socket I/O (which goes through SubmitRead /
// SubmitWrite) but is kept for parity with the general driver, e.g. for
// an application that wants level-triggered readiness rather than a
// single-shot read.
func (d *uringDriver) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	buf := make([]byte, 4096)
	d.armRecv(fd, buf, func(n int, err error) {
		et := EventRead
		if err != nil {
			et = EventError
		}
		cb(fd, et)
		if err == nil {
			d.Register(fd, events, cb)
		}
	})
	return nil
}

func (d *uringDriver) Unregister(fd uintptr) error {
	// Single-shot submissions drain naturally; nothing to cancel here.
	return nil
}

func (d *uringDriver) SubmitRead(fd uintptr, buf []byte, done func(n int, err error)) {
	d.armRecv(fd, buf, done)
}

func (d *uringDriver) SubmitWrite(fd uintptr, buf []byte, done func(n int, err error)) {
	id := d.nextUData()
	op := uring.Send(fd, buf, 0)
	d.mu.Lock()
	d.pending[id] = pendingOp{done: done}
	d.mu.Unlock()
	var flags uint8
	if d.linked {
		flags = iosqeIOLink
	}
	_ = d.ring.QueueSQE(op, flags, id)
}

func (d *uringDriver) SubmitAccept(fd uintptr, done func(newFd int, err error)) {
	id := d.nextUData()
	op := uring.Accept(fd, 0)
	d.mu.Lock()
	d.pending[id] = pendingOp{done: done}
	d.mu.Unlock()
	var flags uint8
	if d.linked {
		flags = iosqeIOLink
	}
	_ = d.ring.QueueSQE(op, flags, id)
}

func (d *uringDriver) ArmSentinel(deadlineNs int64) error {
	d.mu.Lock()
	if deadlineNs == d.armed {
		d.mu.Unlock()
		return nil
	}
	d.armed = deadlineNs
	d.mu.Unlock()

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

func (d *uringDriver) Notify() error {
	one := uint64(1)
	buf := (*[8]byte)(unsafe.Pointer(&one))
	_, err := unix.Write(d.wakeFd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

// Wait submits queued SQEs, blocks for at least one completion, then
// drains completions in batches of uringBatch, matching the original
// proactor's DispatchCompletions loop. timeoutMs is ignored: Wait always
// blocks until at least one completion arrives.
func (d *uringDriver) Wait(timeoutMs int) (int, error) {
	if _, err := d.ring.Submit(); err != nil {
		return 0, err
	}
	if _, err := d.ring.WaitCQEvents(1); err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	handled := 0
	cqes := make([]*uring.CQEvent, uringBatch)
	for {
		n := d.ring.PeekCQEventBatch(cqes)
		for i := 0; i < n; i++ {
			cqe := cqes[i]
			d.dispatch(cqe)
			d.ring.SeenCQE(cqe)
			handled++
		}
		if n < uringBatch {
			break
		}
	}
	return handled, nil
}

func (d *uringDriver) dispatch(cqe *uring.CQEvent) {
	d.mu.Lock()
	op, ok := d.pending[cqe.UserData]
	if ok {
		delete(d.pending, cqe.UserData)
	}
	d.mu.Unlock()
	if !ok || op.done == nil {
		return
	}
	res := int(cqe.Res)
	if err := cqe.Error(); err != nil {
		func() {
			defer func() { recover() }()
			op.done(0, err)
		}()
		return
	}
	func() {
		defer func() { recover() }()
		op.done(res, nil)
	}()
}

func (d *uringDriver) Close() error {
	unix.Close(d.timerFd)
	unix.Close(d.wakeFd)
	d.ring.Close()
	return nil
}
