// Package link implements the Garmin GPS Interface Specification's wire
// protocol stack: L000 framing, L001 link/ack packets, the A001
// protocol-capability handshake, A010 device commands and the A300-A302
// track-transfer command with its D300-D304/D310-D312 record formats.
package link

import (
	"errors"
	"fmt"
	"io"
)

// Transport is the byte-stream collaborator a Session is built on. It is
// satisfied directly by *serial.Port (github.com/tarm/serial) when its
// Config.ReadTimeout is set to roughly the bounded wait this package
// expects (see NewSerialTransport), and by any io.ReadWriter in tests.
//
// Read must wait up to a bounded timeout for readable data: if the wait
// times out it must return (0, nil) ("no data yet", not an error); if the
// descriptor was readable but yielded no bytes it must return an error
// (the device disconnected). Write must write the whole buffer or return
// an error; a short write is a protocol-fatal condition the caller
// surfaces to the user.
type Transport interface {
	io.Reader
	io.Writer
}

// ErrDeviceDisconnected is returned by a Transport's Read when the
// descriptor was readable but a read produced no bytes: the device has
// gone away mid-session.
var ErrDeviceDisconnected = errors.New("garmin: device disconnected")

// SerialTransport adapts an already-opened, already-configured serial
// descriptor (9600 baud, 8N1, raw, no flow control, read timeout around
// 10ms) to the Transport contract. Opening and configuring the OS
// descriptor is the external CLI's job (see cmd/garmini), which opens its
// serial.Port and hands it straight to NewSerialTransport.
type SerialTransport struct {
	rw io.ReadWriter
}

// NewSerialTransport wraps rw (typically a *serial.Port) as a Transport.
func NewSerialTransport(rw io.ReadWriter) *SerialTransport {
	return &SerialTransport{rw: rw}
}

// Read implements Transport. It distinguishes a timed-out wait (the
// underlying reader returns (0, nil), as github.com/tarm/serial does once
// its ReadTimeout elapses) from a readable-but-empty read (the underlying
// reader returns (0, io.EOF) or another error), which it reports as
// ErrDeviceDisconnected.
func (t *SerialTransport) Read(buf []byte) (int, error) {
	n, err := t.rw.Read(buf)
	if n == 0 && err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
	}
	return n, nil
}

// Write implements Transport, retrying on a short write but failing fast
// instead of looping on EAGAIN: a local serial line write is expected to
// complete promptly.
func (t *SerialTransport) Write(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := t.rw.Write(buf[total:])
		if err != nil {
			return total, fmt.Errorf("garmin: write failure: %w", err)
		}
		if n == 0 {
			return total, fmt.Errorf("garmin: short write")
		}
		total += n
	}
	return total, nil
}
