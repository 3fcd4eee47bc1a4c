package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain bytes", "1024", 1024, false},
		{"bytes suffix", "1024B", 1024, false},
		{"kibibytes", "1KiB", KiB, false},
		{"short binary", "100Mi", 100 * MiB, false},
		{"gibibytes", "2GiB", 2 * GiB, false},
		{"decimal", "100MB", 100 * MB, false},
		{"short decimal", "1G", GB, false},
		{"lowercase", "10mib", 10 * MiB, false},
		{"spaces", " 4 GiB ", 4 * GiB, false},
		{"fraction", "1.5GiB", GiB + GiB/2, false},
		{"empty", "", 0, true},
		{"garbage", "lots", 0, true},
		{"unknown unit", "10XB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteSize_TextRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("2GiB")))
	assert.Equal(t, 2*GiB, b)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2.0 GiB", string(text))

	var back ByteSize
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, b, back)

	assert.Error(t, b.UnmarshalText([]byte("nope")))
}

func TestByteSize_Int64(t *testing.T) {
	assert.Equal(t, int64(1024), KiB.Int64())
	assert.Equal(t, int64(1<<63-1), ByteSize(1<<64-1).Int64())
}
