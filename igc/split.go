package igc

import (
	"math"
	"time"

	"github.com/jandelgado/garmini-go"
)

// SplitOptions configures SplitFlights. The zero value selects
// DefaultSplitOptions.
type SplitOptions struct {
	// MaxGap ends a flight segment: a gap between two consecutive points
	// longer than MaxGap starts a new candidate segment.
	MaxGap time.Duration

	// A candidate segment is kept only if it meets at least one of
	// MinDuration, MinClimb or MinSpeed; folds the source's stubbed
	// minimum_trk_points/minimum_duration variant into named knobs.
	MinDuration time.Duration
	MinClimb    float32
	MinSpeed    float64 // km/h
}

// DefaultSplitOptions is the concrete gap/climb/speed/duration heuristic
// (not the stubbed #if 0 sketch in garmini_download, whose knobs were
// minimum_trk_points/minimum_duration): a gap over a minute ends a
// flight, and a candidate flight survives only if it
// climbed at least 30m, sustained 10km/h groundspeed somewhere, or lasted
// at least 3 minutes.
var DefaultSplitOptions = SplitOptions{
	MaxGap:      60 * time.Second,
	MinDuration: 3 * time.Minute,
	MinClimb:    30,
	MinSpeed:    10,
}

// SplitFlights partitions track's points into candidate flight segments
// at gaps of more than opts.MaxGap, then drops any segment that satisfies
// none of opts.MinDuration/MinClimb/MinSpeed.
func SplitFlights(track *garmin.Track, opts SplitOptions) []garmin.Track {
	if opts == (SplitOptions{}) {
		opts = DefaultSplitOptions
	}

	points := track.Points()
	var segments []garmin.Track
	start := 0
	for i := 1; i <= len(points); i++ {
		if i < len(points) && gap(points[i-1], points[i]) <= opts.MaxGap {
			continue
		}
		segment := points[start:i]
		if len(segment) > 0 && keepSegment(segment, opts) {
			t := garmin.NewTrack(len(segment))
			for _, p := range segment {
				t.Push(p)
			}
			segments = append(segments, *t)
		}
		start = i
	}
	return segments
}

func gap(a, b garmin.TrackPoint) time.Duration {
	return time.Duration(b.Time-a.Time) * time.Second
}

func keepSegment(points []garmin.TrackPoint, opts SplitOptions) bool {
	if len(points) < 2 {
		return false
	}
	first, last := points[0], points[len(points)-1]
	duration := gap(first, last)
	if duration >= opts.MinDuration {
		return true
	}
	if climbAmplitude(points) >= opts.MinClimb {
		return true
	}
	return maxSustainedSpeed(points) >= opts.MinSpeed
}

func climbAmplitude(points []garmin.TrackPoint) float32 {
	minAlt, maxAlt := points[0].Alt, points[0].Alt
	for _, p := range points {
		if p.Alt < minAlt {
			minAlt = p.Alt
		}
		if p.Alt > maxAlt {
			maxAlt = p.Alt
		}
	}
	return maxAlt - minAlt
}

// maxSustainedSpeed returns the fastest groundspeed, in km/h, observed
// between any two consecutive points.
func maxSustainedSpeed(points []garmin.TrackPoint) float64 {
	var max float64
	for i := 1; i < len(points); i++ {
		dt := gap(points[i-1], points[i]).Hours()
		if dt <= 0 {
			continue
		}
		d := haversineKM(points[i-1].Posn, points[i].Posn)
		speed := d / dt
		if speed > max {
			max = speed
		}
	}
	return max
}

// haversineKM returns the great-circle distance between two semicircle
// positions, in kilometers.
func haversineKM(a, b garmin.Position) float64 {
	const earthRadiusKM = 6371.0
	lat1, lon1 := a.Degrees()
	lat2, lon2 := b.Degrees()
	rlat1, rlat2 := lat1*math.Pi/180, lat2*math.Pi/180
	dLat := rlat2 - rlat1
	dLon := (lon2 - lon1) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}
