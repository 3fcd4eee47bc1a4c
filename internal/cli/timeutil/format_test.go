package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTrackDuration(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{-1, "-"},
		{0, "0:00"},
		{5, "0:05"},
		{342, "5:42"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTrackDuration(tt.seconds))
		})
	}
}

func TestFormatPlaytime(t *testing.T) {
	const bps = 192000

	assert.Equal(t, "0:10", FormatPlaytime(10*bps, bps))
	assert.Equal(t, "0:01", FormatPlaytime(bps/2, bps))
	assert.Equal(t, "-", FormatPlaytime(-1, bps))
	assert.Equal(t, "-", FormatPlaytime(100, 0))
}
