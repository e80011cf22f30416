// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor drives a cooperative fiber scheduler on top of a
// per-OS-thread I/O backend: epoll plus a timerfd-backed sentinel timer
// for the general flavour, or an io_uring submission/completion ring for
// the uring flavour. A Reactor never preempts a running fiber; fibers
// yield control only at explicit suspension points (I/O, bounded-channel
// operations, or an explicit Yield).
package reactor
