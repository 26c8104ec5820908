package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/jandelgado/garmini-go"
)

// Packet ids, from the GPS Interface Specification's L000/L001/A001/A010
// layers (original_source/garmin.c's Pid_*/Cmnd_*/Tag_* enums).
const (
	PidAckByte = 6
	PidNakByte = 21

	PidProtocolArray  = 253
	PidProductRqst    = 254
	PidProductData    = 255
	PidExtProductData = 248

	PidCommandData = 10
	PidXferCmplt   = 12
	PidRecords     = 27
	PidTrkData     = 34
	PidTrkHdr      = 99
)

// Device command codes (A010).
const (
	CmndAbortTransfer uint16 = 0
	CmndTransferTrk   uint16 = 6
	CmndTurnOffPwr    uint16 = 8
)

// Config configures a Session.
type Config struct {
	// Device is a human-readable device identifier used in "<device>: ..."
	// error messages, typically the serial device path.
	Device string

	// Log, if set, receives a human-readable trace of every decoded and
	// encoded packet (`<{ id, "payload" }` / `>{ id, "payload" }`).
	Log io.Writer

	// Logf, if set, receives warnings for conditions that are not fatal
	// (currently: unexpected packets skipped by ExpectPacketAck during
	// the handshake or a transfer).
	Logf func(format string, args ...interface{})
}

// Session is the link-layer state machine (C3): packet read/write with
// acknowledgement, the product/protocol-capability handshake, and the
// product/protocol tables it owns for the session's lifetime.
type Session struct {
	transport Transport
	src       *byteReader
	device    string
	log       io.Writer
	logf      func(format string, args ...interface{})

	Product   garmin.ProductData
	Protocols []garmin.ProtocolEntry
}

// NewSession creates a Session over transport. It does not perform the
// handshake; call Handshake before using the session for anything else.
func NewSession(transport Transport, config Config) *Session {
	logf := config.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Session{
		transport: transport,
		src:       newByteReader(transport),
		device:    config.Device,
		log:       config.Log,
		logf:      logf,
	}
}

func (s *Session) logPacket(direction byte, p garmin.Packet) {
	if s.log == nil {
		return
	}
	fmt.Fprintf(s.log, "%c{ %3d, \"%s\" }\n", direction, p.ID, garmin.EscapeString(string(p.Data)))
}

// ReadPacket decodes one frame from the transport. It returns io.EOF
// unchanged for a clean session end (no frame even starting to arrive).
func (s *Session) ReadPacket() (garmin.Packet, error) {
	p, err := decodePacket(s.src)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return garmin.Packet{}, err
		}
		return garmin.Packet{}, fmt.Errorf("%s: %w", s.device, err)
	}
	s.logPacket('<', p)
	return p, nil
}

// WritePacket encodes and sends one frame.
func (s *Session) WritePacket(p garmin.Packet) error {
	s.logPacket('>', p)
	frame := encodePacket(p)
	if _, err := s.transport.Write(frame); err != nil {
		return fmt.Errorf("%s: %w", s.device, err)
	}
	return nil
}

// ReadPacketAck reads one packet and immediately acknowledges it with a
// Pid_Ack_Byte packet carrying the received packet's id (LE-encoded).
func (s *Session) ReadPacketAck() (garmin.Packet, error) {
	p, err := s.ReadPacket()
	if err != nil {
		return garmin.Packet{}, err
	}
	ack := garmin.Packet{ID: PidAckByte, Data: encodeUint16LE(uint16(p.ID))}
	if err := s.WritePacket(ack); err != nil {
		return garmin.Packet{}, err
	}
	return p, nil
}

// ExpectPacketAck repeatedly calls ReadPacketAck until a packet with the
// expected id arrives, warning about (and discarding) any intervening
// unexpected packet -- this tolerates Ext_Product_Data and Protocol_Array
// appearing, or not, during the handshake.
func (s *Session) ExpectPacketAck(id uint8) (garmin.Packet, error) {
	for {
		p, err := s.ReadPacketAck()
		if err != nil {
			return garmin.Packet{}, err
		}
		if p.ID == id {
			return p, nil
		}
		s.logf("%s: unexpected packet %d", s.device, p.ID)
	}
}

// WritePacketAck sends p and waits for a matching ack: the device's
// reply must be a Pid_Ack_Byte packet whose 1- or 2-byte payload equals
// p.ID.
func (s *Session) WritePacketAck(p garmin.Packet) error {
	if err := s.WritePacket(p); err != nil {
		return err
	}
	ack, err := s.ReadPacket()
	if err != nil {
		return err
	}
	if ack.ID != PidAckByte {
		return fmt.Errorf("%s: expected ack packet", s.device)
	}
	var ok bool
	switch len(ack.Data) {
	case 1:
		ok = ack.Data[0] == p.ID
	case 2:
		ok = binary.LittleEndian.Uint16(ack.Data) == uint16(p.ID)
	default:
		return fmt.Errorf("%s: ack packet too short", s.device)
	}
	if !ok {
		return fmt.Errorf("%s: ack to wrong packet!", s.device)
	}
	return nil
}

// Handshake performs the Product_Rqst -> Product_Data -> optional
// Ext_Product_Data -> optional Protocol_Array exchange and validates that
// the device advertises Link Protocol L001 and Device Command Protocol
// A010. It must be called once, immediately after the transport is
// opened and before any other Session method.
func (s *Session) Handshake() error {
	if err := s.WritePacketAck(garmin.Packet{ID: PidProductRqst}); err != nil {
		return err
	}
	productPkt, err := s.ExpectPacketAck(PidProductData)
	if err != nil {
		return err
	}
	s.Product = decodeProductData(productPkt.Data)

	next, err := s.ReadPacketAck()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err == nil && next.ID == PidExtProductData {
		next, err = s.ReadPacketAck()
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	if err == nil && next.ID == PidProtocolArray {
		s.Protocols = decodeProtocolArray(next.Data)
	}

	if _, ok := findProtocol(s.Protocols, garmin.TagLink, 1); !ok {
		return fmt.Errorf("%s: device does not support Link Protocol L001", s.device)
	}
	if _, ok := findProtocol(s.Protocols, garmin.TagApplication, 10); !ok {
		return fmt.Errorf("%s: device does not support Device Command Protocol A010", s.device)
	}
	return nil
}

// TurnOffPower sends Cmnd_Turn_Off_Pwr without awaiting an ack: the
// device powers off immediately on receipt.
func (s *Session) TurnOffPower() error {
	return s.WritePacket(garmin.Packet{ID: PidCommandData, Data: encodeUint16LE(CmndTurnOffPwr)})
}

// HasBarometricAltimeter reports whether the product description names a
// model with a barometric altimeter: the run of non-space characters
// directly following the model's number contains an 'S'/'s' (e.g.
// "GPSMAP 76S"); a space right after the number (as in "GPS 12 XL") ends
// the scan with false. Ported from garmin_has_barometric_altimeter.
func (s *Session) HasBarometricAltimeter() bool {
	return hasBarometricAltimeter(s.Product.Description)
}

func hasBarometricAltimeter(description string) bool {
	i := 0
	for i < len(description) && !isDigit(description[i]) {
		i++
	}
	for i < len(description) && isDigit(description[i]) {
		i++
	}
	for i < len(description) && !isSpace(description[i]) {
		if description[i] == 'S' || description[i] == 's' {
			return true
		}
		i++
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f' }

func decodeProductData(data []byte) garmin.ProductData {
	var pd garmin.ProductData
	if len(data) >= 2 {
		pd.ProductID = binary.LittleEndian.Uint16(data[0:2])
	}
	if len(data) >= 4 {
		pd.SoftwareVersion = int16(binary.LittleEndian.Uint16(data[2:4]))
	}
	if len(data) > 4 {
		desc := data[4:]
		if i := indexNUL(desc); i >= 0 {
			desc = desc[:i]
		}
		pd.Description = string(desc)
	}
	return pd
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func decodeProtocolArray(data []byte) []garmin.ProtocolEntry {
	const entrySize = 3
	n := len(data) / entrySize
	entries := make([]garmin.ProtocolEntry, n)
	for i := 0; i < n; i++ {
		off := i * entrySize
		entries[i] = garmin.ProtocolEntry{
			Tag:  data[off],
			Data: binary.LittleEndian.Uint16(data[off+1 : off+3]),
		}
	}
	return entries
}

func findProtocol(entries []garmin.ProtocolEntry, tag byte, data uint16) (garmin.ProtocolEntry, bool) {
	for _, e := range entries {
		if e.Tag == tag && e.Data == data {
			return e, true
		}
	}
	return garmin.ProtocolEntry{}, false
}
