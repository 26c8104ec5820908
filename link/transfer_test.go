package link

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jandelgado/garmini-go"
	"github.com/jandelgado/garmini-go/garmintest"
)

func d300Bytes(lat, lon int32, tm uint32) []byte {
	buf := make([]byte, 13)
	putUint32LE(buf[0:4], uint32(lat))
	putUint32LE(buf[4:8], uint32(lon))
	putUint32LE(buf[8:12], tm)
	buf[12] = 0
	return buf
}

func d301Bytes(lat, lon int32, tm uint32, alt float32) []byte {
	buf := make([]byte, 21)
	putUint32LE(buf[0:4], uint32(lat))
	putUint32LE(buf[4:8], uint32(lon))
	putUint32LE(buf[8:12], tm)
	putUint32LE(buf[12:16], math.Float32bits(alt))
	return buf
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func TestDecodeTrackPoint(t *testing.T) {
	var testCases = []struct {
		name   string
		format uint16
		data   []byte
		want   garmin.TrackPoint
	}{
		{
			name:   "ok, D300 has no altitude and is marked validity 'V'",
			format: DataD300,
			data:   d300Bytes(1000, 2000, 86400),
			want:   garmin.TrackPoint{Time: 86400, Posn: garmin.Position{Lat: 1000, Lon: 2000}, Alt: 0, Validity: 'V'},
		},
		{
			name:   "ok, D301 carries a real altitude",
			format: DataD301,
			data:   d301Bytes(1000, 2000, 86400, 1234.5),
			want:   garmin.TrackPoint{Time: 86400, Posn: garmin.Position{Lat: 1000, Lon: 2000}, Alt: 1234.5, Validity: 'A'},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeTrackPoint(tc.format, tc.data)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeTrackPoint_UnsupportedFormat(t *testing.T) {
	_, err := decodeTrackPoint(999, make([]byte, 20))
	assert.EqualError(t, err, "garmin: unsupported track point format D999")
}

func TestSession_TransferTrack(t *testing.T) {
	ackForCmd := encodePacket(garmin.Packet{ID: PidAckByte, Data: encodeUint16LE(PidCommandData)})
	recordsFrame := encodePacket(garmin.Packet{ID: PidRecords, Data: encodeUint16LE(2)})
	point1 := encodePacket(garmin.Packet{ID: PidTrkData, Data: d300Bytes(100, 200, 1)})
	point2 := encodePacket(garmin.Packet{ID: PidTrkData, Data: d300Bytes(300, 400, 2)})
	xferCmplt := encodePacket(garmin.Packet{ID: PidXferCmplt})

	mock := &garmintest.MockReadWriter{Reads: frameReads(ackForCmd, recordsFrame, point1, point2, xferCmplt)}
	s := NewSession(NewSerialTransport(mock), Config{Device: "test"})

	ch, err := s.TransferTrack(Capabilities{TrackPoint: DataD300})
	assert.NoError(t, err)

	var results []TrackPointResult
	for r := range ch {
		results = append(results, r)
	}

	assert.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Total)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, int32(100), results[0].Point.Posn.Lat)
	assert.Equal(t, 1, results[1].Index)
	assert.Equal(t, int32(300), results[1].Point.Posn.Lat)
}
