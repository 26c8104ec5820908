package link

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/jandelgado/garmini-go"
)

// TrackPointResult is one element of the stream TransferTrack returns: a
// decoded point plus its position within the transfer (Index is 0-based,
// Total is the device-reported record count, both as garmini_transfer_trk
// reports them to its callback), or a terminal Err.
//
// A transfer that ends in error emits exactly one TrackPointResult whose
// Err is non-nil as its last value, then closes the channel; a transfer
// that completes normally closes the channel without ever setting Err.
type TrackPointResult struct {
	Point garmin.TrackPoint
	Index int
	Total int
	Err   error
}

// TransferTrack issues Cmnd_Transfer_Trk and streams the device's reply as
// a channel of decoded track points, converting the original's
// garmin_each/garmin_transfer_trk_callback push-style callback into a
// pull-style channel a caller can range over (e.g. to drive a progress
// indicator). The channel is unbuffered: the producing goroutine waits on
// each send until the value is received, so a caller that stops reading
// before the channel is closed leaves that goroutine blocked.
func (s *Session) TransferTrack(caps Capabilities) (<-chan TrackPointResult, error) {
	cmd := garmin.Packet{ID: PidCommandData, Data: encodeUint16LE(CmndTransferTrk)}
	if err := s.WritePacketAck(cmd); err != nil {
		return nil, err
	}

	recordsPkt, err := s.ReadPacketAck()
	if err != nil {
		return nil, err
	}
	if recordsPkt.ID != PidRecords {
		return nil, fmt.Errorf("%s: expected records packet", s.device)
	}
	if len(recordsPkt.Data) < 2 {
		return nil, fmt.Errorf("%s: records packet too short", s.device)
	}
	total := int(binary.LittleEndian.Uint16(recordsPkt.Data))

	out := make(chan TrackPointResult)
	go s.runTransferTrack(caps, total, out)
	return out, nil
}

func (s *Session) runTransferTrack(caps Capabilities, total int, out chan<- TrackPointResult) {
	defer close(out)

	for index := 0; index < total; index++ {
		p, err := s.ReadPacketAck()
		if err != nil {
			out <- TrackPointResult{Err: err}
			return
		}
		switch p.ID {
		case PidTrkHdr:
			// D310-D312 header record: recognised, payload unconsumed
			// beyond framing.
			continue
		case PidTrkData:
			tp, err := decodeTrackPoint(caps.TrackPoint, p.Data)
			if err != nil {
				out <- TrackPointResult{Err: fmt.Errorf("%s: %w", s.device, err)}
				return
			}
			out <- TrackPointResult{Point: tp, Index: index, Total: total}
		default:
			s.logf("%s: unexpected packet %d during track transfer", s.device, p.ID)
		}
	}

	xferCmplt, err := s.ReadPacketAck()
	if err != nil {
		out <- TrackPointResult{Err: err}
		return
	}
	if xferCmplt.ID != PidXferCmplt {
		out <- TrackPointResult{Err: fmt.Errorf("%s: expected xfer-complete packet", s.device)}
	}
}

// decodeTrackPoint decodes one Pid_Trk_Data payload according to format
// (one of DataD300..DataD304), each a little-endian struct of a position_t
// (two int32 semicircle fields), a uint32 device time, and format-specific
// trailing fields -- ported field-by-field from garmin_transfer_trk_callback
// and the D3xx struct layouts in original_source/garmin.h.
func decodeTrackPoint(format uint16, data []byte) (garmin.TrackPoint, error) {
	if len(data) < 12 {
		return garmin.TrackPoint{}, fmt.Errorf("garmin: track point record too short")
	}
	posn := garmin.Position{
		Lat: int32(binary.LittleEndian.Uint32(data[0:4])),
		Lon: int32(binary.LittleEndian.Uint32(data[4:8])),
	}
	tm := int64(binary.LittleEndian.Uint32(data[8:12]))

	switch format {
	case DataD300:
		return garmin.TrackPoint{Time: tm, Posn: posn, Alt: 0, Validity: 'V'}, nil
	case DataD301, DataD302, DataD303, DataD304:
		if len(data) < 16 {
			return garmin.TrackPoint{}, fmt.Errorf("garmin: track point record too short")
		}
		alt := math.Float32frombits(binary.LittleEndian.Uint32(data[12:16]))
		return garmin.TrackPoint{Time: tm, Posn: posn, Alt: alt, Validity: 'A'}, nil
	default:
		return garmin.TrackPoint{}, fmt.Errorf("garmin: unsupported track point format D%d", format)
	}
}
