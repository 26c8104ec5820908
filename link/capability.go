package link

import (
	"errors"

	"github.com/jandelgado/garmini-go"
)

// legacyTrackProducts is the fixed set of product ids that support track
// transfer via A300/D300 despite not advertising an Application Protocol
// entry for it in their protocol array -- older units never learned to
// report their own capabilities. Ported verbatim from garmin_transfer_trk's
// static product-id table in original_source/garmin.c.
var legacyTrackProducts = map[uint16]bool{
	13: true, 18: true, 22: true, 23: true, 24: true, 25: true, 29: true,
	31: true, 35: true, 36: true, 39: true, 41: true, 42: true, 44: true,
	45: true, 47: true, 48: true, 49: true, 50: true, 53: true, 55: true,
	56: true, 59: true, 61: true, 62: true, 71: true, 72: true, 73: true,
	74: true, 76: true, 77: true, 87: true, 88: true, 95: true, 96: true,
	97: true, 100: true, 105: true, 106: true, 112: true,
}

// Track point record formats (D300-D304), by protocol array Data value.
const (
	DataD300 uint16 = 300
	DataD301 uint16 = 301
	DataD302 uint16 = 302
	DataD303 uint16 = 303
	DataD304 uint16 = 304
)

// Track header record formats (D310-D312): checked by ResolveCapabilities
// and consumed during a transfer, but not decoded into a typed value.
const (
	DataD310 uint16 = 310
	DataD311 uint16 = 311
	DataD312 uint16 = 312
)

// Capabilities is the resolved track-transfer shape for one device: which
// D3xx record format its track points arrive in, and whether its track
// transfer is prefixed by a D31x header record.
type Capabilities struct {
	// TrackPoint is the D300-D304 format tag the device's track points are
	// encoded in.
	TrackPoint uint16

	// HasTrackHeader reports whether a D310-D312 header record precedes
	// each run of track points.
	HasTrackHeader bool
}

// ErrTrackTransferUnsupported is returned by ResolveCapabilities when a
// device neither advertises an A300/A301/A302 protocol entry nor appears
// in the legacy product-id whitelist.
var ErrTrackTransferUnsupported = errors.New("garmin: device does not support track transfer")

// ResolveCapabilities scans the device's advertised protocol array for an
// Application Protocol entry describing track transfer (A300, A301 or
// A302). The entry (or entries, for A301/A302) immediately following it
// must be Data Protocol entries naming the D31x track header format (A301/
// A302 only, one of D310-D312) and the D300-D304 track point format --
// mirroring garmin_transfer_trk, which treats running off the end of the
// array, or finding a non-'D' tag, while expecting a data format as fatal
// and jumps straight to its error path rather than guessing a format. If
// the device advertises no track-transfer protocol at all, the legacy
// whitelist is consulted and, if it matches, the original D300/no-header
// shape is assumed (the only shape pre-A300 devices ever used).
func ResolveCapabilities(productID uint16, entries []garmin.ProtocolEntry) (Capabilities, error) {
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if e.Tag != garmin.TagApplication {
			continue
		}
		switch e.Data {
		case 300: // A300: single D3xx track point stream, no header.
			format, ok := immediateDataEntry(entries, i+1)
			if !ok || !isTrackPointFormat(format) {
				return Capabilities{}, ErrTrackTransferUnsupported
			}
			return Capabilities{TrackPoint: format, HasTrackHeader: false}, nil
		case 301, 302: // A301/A302: a D31x header entry precedes the D3xx point entry.
			header, ok := immediateDataEntry(entries, i+1)
			if !ok || header < DataD310 || header > DataD312 {
				return Capabilities{}, ErrTrackTransferUnsupported
			}
			format, ok := immediateDataEntry(entries, i+2)
			if !ok || !isTrackPointFormat(format) {
				return Capabilities{}, ErrTrackTransferUnsupported
			}
			return Capabilities{TrackPoint: format, HasTrackHeader: true}, nil
		}
	}

	if legacyTrackProducts[productID] {
		return Capabilities{TrackPoint: DataD300, HasTrackHeader: false}, nil
	}
	return Capabilities{}, ErrTrackTransferUnsupported
}

// immediateDataEntry returns the Data value of the entry at index i,
// provided it exists and its tag is Tag_Data; running off the end of the
// array or landing on any other tag is reported as not-ok rather than
// papered over.
func immediateDataEntry(entries []garmin.ProtocolEntry, i int) (uint16, bool) {
	if i >= len(entries) || entries[i].Tag != garmin.TagData {
		return 0, false
	}
	return entries[i].Data, true
}

// isTrackPointFormat reports whether format is one of the known D300-D304
// track point record formats.
func isTrackPointFormat(format uint16) bool {
	return format >= DataD300 && format <= DataD304
}
