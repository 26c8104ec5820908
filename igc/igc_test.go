package igc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jandelgado/garmini-go"
)

func TestWriter_WriteTrack_Header(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, Metadata{
		Manufacturer:       "XXX",
		SerialNumber:       1,
		Pilot:              "Jane Pilot",
		SoftwareVersion:    302,
		ProductDescription: "GPS 12 XL",
	})

	err := w.WriteTrack(nil)
	assert.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "AXXX001\r\n"))
	assert.Contains(t, out, "HFDTE311289\n") // 1989-12-31, from the epoch offset itself
	assert.Contains(t, out, "HFFXA100\r\n")
	assert.Contains(t, out, "HPPLTPILOT:Jane Pilot\r\n")
	assert.Contains(t, out, "HFRFWFIRMWAREREVISION:3.02\r\n")
	assert.Contains(t, out, "HFFTYFRTYPE:GARMIN,GPS 12 XL\r\n")
	assert.NotContains(t, out, "HPGTYGLIDERTYPE")
}

func TestWriter_WriteTrack_BRecord(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, Metadata{Manufacturer: "XXX", SerialNumber: 1})

	points := []garmin.TrackPoint{
		{Time: 0, Posn: garmin.Position{Lat: 536870912, Lon: -536870912}, Alt: 100, Validity: 'A'}, // +45deg, -45deg
	}

	err := w.WriteTrack(points)
	assert.NoError(t, err)

	lines := strings.Split(buf.String(), "\n")
	var bLine string
	for _, l := range lines {
		if strings.HasPrefix(l, "B") {
			bLine = l
			break
		}
	}
	assert.NotEmpty(t, bLine)
	assert.Equal(t, byte('A'), bLine[24])
}

func TestWriter_WriteTrack_SkipsInvalidPoints(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, Metadata{})

	points := []garmin.TrackPoint{
		{Time: 0, Posn: garmin.InvalidPosition, Alt: 100},
		{Time: 10, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: garmin.NoAltitude},
	}

	err := w.WriteTrack(points)
	assert.NoError(t, err)
	assert.NotContains(t, buf.String(), "\nB")
}

func TestWriter_WriteTrack_DateRollover(t *testing.T) {
	var buf strings.Builder
	w := NewWriter(&buf, Metadata{})

	secondsPerDay := int64(86400)
	points := []garmin.TrackPoint{
		{Time: 0, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: 1, Validity: 'A'},
		{Time: secondsPerDay, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: 1, Validity: 'A'},
	}

	err := w.WriteTrack(points)
	assert.NoError(t, err)

	assert.Equal(t, 2, strings.Count(buf.String(), "HFDTE"))
}
