// Package igc renders a decoded track as an IGC flight-recorder file:
// the A/H header records and the B track-point records, ported from
// garmini_write_igc in original_source/garmini.c.
package igc

import (
	"fmt"
	"io"
	"time"

	"github.com/jandelgado/garmini-go"
)

// Metadata is the set of values garmini_write_igc reads from file-scope
// globals in the original; here they are collected once by the CLI and
// passed in explicitly.
type Metadata struct {
	// Manufacturer and SerialNumber form the IGC A record
	// ("A<manufacturer><serial, 3 digits>"). Manufacturer defaults to
	// "XXX" (an unregistered manufacturer code) when unset.
	Manufacturer string
	SerialNumber int

	Pilot            string
	GliderType       string
	GliderID         string
	CompetitionID    string
	CompetitionClass string

	// BarometricAltimeter selects whether a track point's altitude is
	// emitted as the B record's pressure-altitude field (true) or its
	// GNSS-altitude field (false, the default for units with no
	// barometric sensor).
	BarometricAltimeter bool

	SoftwareVersion    int16
	ProductDescription string
}

// Writer emits an IGC file to an underlying io.Writer.
type Writer struct {
	w    io.Writer
	meta Metadata
}

// NewWriter creates a Writer that emits an IGC file described by meta to w.
func NewWriter(w io.Writer, meta Metadata) *Writer {
	return &Writer{w: w, meta: meta}
}

// WriteTrack emits one complete IGC file for points: the A/H header block
// followed by one B record per point that passes TrackPoint.IsValidForIGC,
// with an extra HFDTE record inserted whenever a point's UTC date differs
// from the previous one emitted (date rollover during an overnight
// flight).
//
// The header's initial HFDTE date is taken from the first point in points
// regardless of validity, matching garmini_write_igc's use of begin->time
// even when begin == end.
func (w *Writer) WriteTrack(points []garmin.TrackPoint) error {
	var headerTime time.Time
	if len(points) > 0 {
		headerTime = points[0].PosixTime()
	} else {
		headerTime = time.Unix(garmin.GarminTimeOffset, 0).UTC()
	}

	if err := w.writeHeader(headerTime); err != nil {
		return err
	}

	lastDate := headerTime
	for _, p := range points {
		if !p.IsValidForIGC() {
			continue
		}
		t := p.PosixTime()
		if dateChanged(lastDate, t) {
			if err := w.writeHFDTE(t); err != nil {
				return err
			}
			lastDate = t
		}
		if err := w.writeBRecord(p, t); err != nil {
			return err
		}
	}
	return nil
}

func dateChanged(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay != by || am != bm || ad != bd
}

func (w *Writer) writeHeader(headerTime time.Time) error {
	manufacturer := w.meta.Manufacturer
	if manufacturer == "" {
		manufacturer = "XXX"
	}
	if _, err := fmt.Fprintf(w.w, "A%s%03d\r\n", manufacturer, w.meta.SerialNumber); err != nil {
		return err
	}
	if err := w.writeHFDTE(headerTime); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w.w, "HFFXA100\r\n"); err != nil {
		return err
	}
	if w.meta.Pilot != "" {
		if _, err := fmt.Fprintf(w.w, "HPPLTPILOT:%s\r\n", w.meta.Pilot); err != nil {
			return err
		}
	}
	if w.meta.GliderType != "" {
		if _, err := fmt.Fprintf(w.w, "HPGTYGLIDERTYPE:%s\r\n", w.meta.GliderType); err != nil {
			return err
		}
	}
	if w.meta.GliderID != "" {
		if _, err := fmt.Fprintf(w.w, "HPGIDGLIDERID:%s\r\n", w.meta.GliderID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w.w, "HDTM100GPSDATUM:WGS-1984\r\n"); err != nil {
		return err
	}
	sv := w.meta.SoftwareVersion
	if _, err := fmt.Fprintf(w.w, "HFRFWFIRMWAREREVISION:%d.%02d\r\n", sv/100, abs16(sv%100)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "HFFTYFRTYPE:GARMIN,%s\r\n", w.meta.ProductDescription); err != nil {
		return err
	}
	if w.meta.CompetitionID != "" {
		if _, err := fmt.Fprintf(w.w, "HPCIDCOMPETITIONID:%s\r\n", w.meta.CompetitionID); err != nil {
			return err
		}
	}
	if w.meta.CompetitionClass != "" {
		if _, err := fmt.Fprintf(w.w, "HPCCLCOMPETITIONCLASS:%s\r\n", w.meta.CompetitionClass); err != nil {
			return err
		}
	}
	return nil
}

func abs16(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

// writeHFDTE emits the HFDTE record, which (faithfully to the original)
// is the only header/date record terminated by a bare "\n" rather than
// "\r\n".
func (w *Writer) writeHFDTE(t time.Time) error {
	_, err := fmt.Fprintf(w.w, "HFDTE%02d%02d%02d\n", t.Day(), int(t.Month()), t.Year()%100)
	return err
}

func (w *Writer) writeBRecord(p garmin.TrackPoint, t time.Time) error {
	lat, lon := p.Posn.Degrees()

	latDeg, latMinThousandths, latHemi := splitCoordinate(lat, 'N', 'S')
	lonDeg, lonMinThousandths, lonHemi := splitCoordinate(lon, 'E', 'W')

	intAlt := 0
	if p.Alt > 0 {
		intAlt = int(p.Alt + 0.5)
	}
	pressureAlt, gnssAlt := 0, intAlt
	if w.meta.BarometricAltimeter {
		pressureAlt, gnssAlt = intAlt, 0
	}

	_, err := fmt.Fprintf(w.w, "B%02d%02d%02d%02d%05d%c%03d%05d%c%c%05d%05d\r\n",
		t.Hour(), t.Minute(), t.Second(),
		latDeg, latMinThousandths, latHemi,
		lonDeg, lonMinThousandths, lonHemi,
		p.Validity, pressureAlt, gnssAlt)
	return err
}

// splitCoordinate converts a signed decimal-degree coordinate into IGC's
// degrees + thousandths-of-a-minute + hemisphere-letter form, applying the
// same 0.5/60000-degree rounding offset garmini_write_igc applies before
// truncating.
func splitCoordinate(deg float64, positive, negative byte) (degrees, minThousandths int, hemisphere byte) {
	hemisphere = negative
	if deg > 0 {
		hemisphere = positive
	} else {
		deg = -deg
	}
	deg += 0.5 / 60000.0
	degrees = int(deg)
	minThousandths = int(60000 * (deg - float64(degrees)))
	return degrees, minThousandths, hemisphere
}
