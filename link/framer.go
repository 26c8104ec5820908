package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jandelgado/garmini-go"
)

const (
	dle = 0x10
	etx = 0x03
)

// byteReader is the framing layer's buffered byte source: a read-ahead
// buffer of up to 1024 bytes refilled from a Transport, one Transport.Read
// call per refill (mirrors garmin_read/garmin_getc in the original
// garmin.c: one bounded wait, then either bytes or a clean "no data"
// signal -- never an internal retry loop).
type byteReader struct {
	transport Transport
	buf       [1024]byte
	data      []byte
	pos       int
}

func newByteReader(t Transport) *byteReader {
	return &byteReader{transport: t}
}

// getByte returns the next byte, refilling from the transport when the
// read-ahead buffer is empty. It returns io.EOF when the transport's
// bounded wait found no data (a timeout, not a disconnect); a genuine
// disconnect is reported as ErrDeviceDisconnected by the Transport and
// propagated unchanged.
func (r *byteReader) getByte() (byte, error) {
	if r.pos == len(r.data) {
		n, err := r.transport.Read(r.buf[:])
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		r.data = r.buf[:n]
		r.pos = 0
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// getDLEByte reads one byte through the DLE-unstuffing rule: a DLE must
// be followed by a second DLE (the doubled-DLE escape for a literal 0x10
// payload byte); any other byte following a DLE is malformed framing.
func getDLEByte(r *byteReader) (byte, error) {
	c, err := r.getByte()
	if err != nil {
		return 0, err
	}
	if c == dle {
		c2, err := r.getByte()
		if err != nil {
			return 0, err
		}
		if c2 != dle {
			return 0, errors.New("garmin: expected DLE")
		}
	}
	return c, nil
}

// incompletePacket wraps a clean timeout-EOF encountered mid-frame as a
// fatal "incomplete packet" condition; any other error (e.g.
// ErrDeviceDisconnected) is passed through unchanged.
func incompletePacket(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("garmin: incomplete packet: %w", err)
	}
	return err
}

// decodePacket decodes one frame: DLE id [DLE] size [DLE] data[0..size]
// [DLE]* checksum [DLE] DLE ETX. It returns io.EOF unchanged when the very
// first byte of the frame (the leading DLE sentinel) times out -- a clean
// session end used by the handshake to detect an absent optional packet.
// Any EOF after that point is an incomplete frame and is fatal.
func decodePacket(r *byteReader) (garmin.Packet, error) {
	// leading DLE sentinel: read and discard, same as garmin_read_packet's
	// unchecked first garmin_getc call.
	if _, err := r.getByte(); err != nil {
		return garmin.Packet{}, err
	}

	id, err := getDLEByte(r)
	if err != nil {
		return garmin.Packet{}, incompletePacket(err)
	}
	checksum := int(id)

	size, err := getDLEByte(r)
	if err != nil {
		return garmin.Packet{}, incompletePacket(err)
	}
	checksum += int(size)

	data := make([]byte, size)
	for i := range data {
		b, err := getDLEByte(r)
		if err != nil {
			return garmin.Packet{}, incompletePacket(err)
		}
		checksum += int(b)
		data[i] = b
	}
	wantChecksum := byte((-checksum) & 0xff)

	cs, err := getDLEByte(r)
	if err != nil {
		return garmin.Packet{}, incompletePacket(err)
	}
	if cs != wantChecksum {
		return garmin.Packet{}, errors.New("garmin: checksum failed")
	}

	trailDLE, err := r.getByte()
	if err != nil {
		return garmin.Packet{}, incompletePacket(err)
	}
	if trailDLE != dle {
		return garmin.Packet{}, errors.New("garmin: expected DLE")
	}
	trailETX, err := r.getByte()
	if err != nil {
		return garmin.Packet{}, incompletePacket(err)
	}
	if trailETX != etx {
		return garmin.Packet{}, errors.New("garmin: expected ETX")
	}

	return garmin.Packet{ID: id, Data: data}, nil
}

// appendDLEByte appends b to buf, doubling it if it equals DLE.
func appendDLEByte(buf []byte, b byte) []byte {
	buf = append(buf, b)
	if b == dle {
		buf = append(buf, dle)
	}
	return buf
}

// encodePacket assembles the on-wire frame for p: DLE id size data...
// checksum DLE ETX, doubling any payload byte equal to DLE.
func encodePacket(p garmin.Packet) []byte {
	size := byte(len(p.Data))
	buf := make([]byte, 0, len(p.Data)+8)
	buf = append(buf, dle)
	buf = appendDLEByte(buf, p.ID)
	buf = appendDLEByte(buf, size)

	checksum := int(p.ID) + int(size)
	for _, b := range p.Data {
		buf = appendDLEByte(buf, b)
		checksum += int(b)
	}
	cs := byte((-checksum) & 0xff)
	buf = appendDLEByte(buf, cs)

	buf = append(buf, dle, etx)
	return buf
}

func encodeUint16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}
