package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	data := Dataset{Headers: []string{"course", "start", "reason"}}
	data.Append("C100", "2024-01-08")
	data.Append("C200", "", "No instructor is available.", "dropped")
	return data
}

func TestDatasetAppendAndColumn(t *testing.T) {
	data := sampleDataset()
	assert.Equal(t, [][]string{
		{"C100", "2024-01-08", ""},
		{"C200", "", "No instructor is available."},
	}, data.Rows)
	assert.Equal(t, 2, data.Column("reason"))
	assert.Equal(t, -1, data.Column("room"))
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(0).Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "course,start,reason\nC100,2024-01-08,\nC200,,No instructor is available.\n", string(out))
}

func TestCSVExporterCustomDelimiter(t *testing.T) {
	out, err := NewCSVExporter(';').Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("course;start;reason\n")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter(0).Render(Dataset{})
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, Document{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data := sampleDataset()
	for i := 0; i < 120; i++ {
		data.Append("C300", "2024-01-09", strings.Repeat("long reason ", 20))
	}
	highlighted := 0
	out, err := NewPDFExporter().Render(data, Document{
		Title:   "Optimizer run",
		Summary: []string{"Priority: DEFAULT", "Scheduled: 1"},
		Highlight: func(row []string) bool {
			if row[0] == "C200" {
				highlighted++
				return true
			}
			return false
		},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, 1, highlighted)
}

func TestColumnWidths(t *testing.T) {
	data := Dataset{Headers: []string{"a", "bbb"}}
	data.Append("", "")
	widths := columnWidths(data, 100)
	assert.InDelta(t, minColumn+(100-2*minColumn)/4, widths[0], 1e-9)
	assert.InDelta(t, 100, widths[0]+widths[1], 1e-9)

	empty := columnWidths(Dataset{Headers: []string{"", ""}}, 100)
	assert.Equal(t, []float64{50, 50}, empty)
}

func TestFit(t *testing.T) {
	assert.Equal(t, "short", fit("short", 50))
	assert.Equal(t, "abcd~", fit("abcdefghij", 5*mmPerRune))
}
