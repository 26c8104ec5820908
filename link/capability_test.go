package link

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jandelgado/garmini-go"
)

func TestResolveCapabilities(t *testing.T) {
	var testCases = []struct {
		name      string
		productID uint16
		entries   []garmin.ProtocolEntry
		want      Capabilities
		wantErr   string
	}{
		{
			name:      "ok, A300 advertises D300 directly",
			productID: 9999,
			entries: []garmin.ProtocolEntry{
				{Tag: garmin.TagApplication, Data: 300},
				{Tag: garmin.TagData, Data: 300},
			},
			want: Capabilities{TrackPoint: DataD300, HasTrackHeader: false},
		},
		{
			name:      "ok, A301 advertises D310 header then D301 points",
			productID: 9999,
			entries: []garmin.ProtocolEntry{
				{Tag: garmin.TagApplication, Data: 301},
				{Tag: garmin.TagData, Data: 310},
				{Tag: garmin.TagData, Data: 301},
			},
			want: Capabilities{TrackPoint: DataD301, HasTrackHeader: true},
		},
		{
			name:      "ok, A302 advertises D312 header then D304 points",
			productID: 9999,
			entries: []garmin.ProtocolEntry{
				{Tag: garmin.TagPhysical, Data: 1},
				{Tag: garmin.TagApplication, Data: 302},
				{Tag: garmin.TagData, Data: 312},
				{Tag: garmin.TagData, Data: 304},
			},
			want: Capabilities{TrackPoint: DataD304, HasTrackHeader: true},
		},
		{
			name:      "ok, no track protocol advertised but product is in the legacy whitelist",
			productID: 13,
			entries:   []garmin.ProtocolEntry{{Tag: garmin.TagLink, Data: 1}},
			want:      Capabilities{TrackPoint: DataD300, HasTrackHeader: false},
		},
		{
			name:      "nok, no track protocol advertised and product is unknown",
			productID: 1,
			entries:   []garmin.ProtocolEntry{{Tag: garmin.TagLink, Data: 1}},
			wantErr:   "garmin: device does not support track transfer",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveCapabilities(tc.productID, tc.entries)
			if tc.wantErr != "" {
				assert.EqualError(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
