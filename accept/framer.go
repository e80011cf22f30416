// File: accept/framer.go
// Author: momentics <momentics@gmail.com>
//
// EchoFramer is a reference Connection implementing the generic
// length-prefixed wire protocol: a 4-byte big-endian length prefix
// followed by up to 1024 bytes of payload. It mirrors the original's
// Redis-ping connection state machine (WAIT_READ -> READ -> WRITE ->
// WAIT_READ) but echoes the frame back instead of parsing a protocol
// that is out of scope here.

package accept

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
	"github.com/momentics/fiberflow/socket"
)

// MaxFrameLen bounds a single frame's payload, matching the wire
// protocol's stated maximum.
const MaxFrameLen = 1024

// EchoFramer reads one length-prefixed frame at a time and writes it
// back unmodified, until the peer closes the connection or sends a
// frame that violates the protocol.
type EchoFramer struct{}

// NewEchoFramer satisfies the accept.Factory signature.
func NewEchoFramer() Connection { return &EchoFramer{} }

func (e *EchoFramer) HandleRequests(r *reactor.Reactor, sock *socket.FiberSocket) error {
	for {
		frame, err := ReadFrame(sock)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := WriteFrame(sock, frame); err != nil {
			return err
		}
	}
}

// ReadFrame reads one length-prefixed frame: a 4-byte big-endian length
// followed by that many payload bytes, erroring with a KindProtocol
// error if the declared length exceeds MaxFrameLen.
func ReadFrame(sock *socket.FiberSocket) ([]byte, error) {
	header := make([]byte, 4)
	if err := readFull(sock, header); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxFrameLen {
		return nil, fibererr.New(fibererr.KindProtocol, "accept.ReadFrame", errFrameTooLarge)
	}
	payload := make([]byte, n)
	if err := readFull(sock, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame.
func WriteFrame(sock *socket.FiberSocket, payload []byte) error {
	if len(payload) > MaxFrameLen {
		return fibererr.New(fibererr.KindProtocol, "accept.WriteFrame", errFrameTooLarge)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if err := sock.WriteAll(header); err != nil {
		return err
	}
	return sock.WriteAll(payload)
}

func readFull(sock *socket.FiberSocket, buf []byte) error {
	read := 0
	for read < len(buf) {
		n, err := sock.Read(buf[read:])
		if n == 0 && err == nil {
			return io.EOF
		}
		if err != nil {
			return err
		}
		read += n
	}
	return nil
}

var errFrameTooLarge = errors.New("frame exceeds maximum length")
