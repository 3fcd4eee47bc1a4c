package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type entry struct {
	ContentID string `json:"content_id" yaml:"content_id"`
	SizeBytes int64  `json:"size_bytes" yaml:"size_bytes"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{" JSON ", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrint(t *testing.T) {
	data := []entry{{ContentID: "file$a.flac", SizeBytes: 1024}}

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatJSON, data))

		var decoded []entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, data, decoded)
		assert.Contains(t, buf.String(), "\n  ")
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatYAML, data))

		var decoded []entry
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, data, decoded)
	})

	t.Run("TableFallsBackToJSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, data))
		assert.Contains(t, buf.String(), `"content_id": "file$a.flac"`)
	})

	t.Run("TableRenderer", func(t *testing.T) {
		table := NewTableData("CONTENT_ID", "SIZE")
		table.AddRow("file$a.flac", "1.0 KiB")

		var buf bytes.Buffer
		require.NoError(t, Print(&buf, FormatTable, table))
		assert.Contains(t, buf.String(), "CONTENT")
		assert.Contains(t, buf.String(), "file$a.flac")
		assert.Contains(t, buf.String(), "1.0 KiB")
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		assert.Error(t, Print(&bytes.Buffer{}, Format("xml"), data))
	})
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{
		{"Cached", "1.0 GiB"},
		{"Queued", "3"},
	}))

	out := buf.String()
	assert.Contains(t, out, "Cached")
	assert.Contains(t, out, "1.0 GiB")
	assert.Contains(t, out, "Queued")
}

func TestPrinter(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewPrinter(&buf, false)
		p.Success("queued")
		p.Warning("slow")
		p.Error("failed")
		assert.Equal(t, "queued\nslow\nfailed\n", buf.String())
	})

	t.Run("Colored", func(t *testing.T) {
		var buf bytes.Buffer
		NewPrinter(&buf, true).Success("queued")
		assert.Equal(t, "\033[32mqueued\033[0m\n", buf.String())
	})
}
