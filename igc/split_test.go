package igc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jandelgado/garmini-go"
)

func TestSplitFlights(t *testing.T) {
	track := garmin.NewTrack(0)
	// first flight: climbs 100m over 10 minutes, kept on MinClimb/MinDuration.
	for i := int64(0); i <= 600; i += 60 {
		track.Push(garmin.TrackPoint{Time: i, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: float32(i / 6), Validity: 'A'})
	}
	// a gap of 2 hours, then a second, short, flat, slow flight: dropped.
	gapStart := int64(600 + 2*3600)
	track.Push(garmin.TrackPoint{Time: gapStart, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: 100, Validity: 'A'})
	track.Push(garmin.TrackPoint{Time: gapStart + 30, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: 100, Validity: 'A'})

	segments := SplitFlights(track, DefaultSplitOptions)

	assert.Len(t, segments, 1)
	assert.Equal(t, 11, segments[0].Len())
}

func TestSplitFlights_DefaultsWhenZeroValue(t *testing.T) {
	track := garmin.NewTrack(0)
	for i := int64(0); i <= 100; i += 10 {
		track.Push(garmin.TrackPoint{Time: i, Posn: garmin.Position{Lat: 1, Lon: 1}, Alt: 1, Validity: 'A'})
	}

	segments := SplitFlights(track, SplitOptions{})
	assert.Empty(t, segments) // no climb, no speed, under 3 minutes: dropped
}
