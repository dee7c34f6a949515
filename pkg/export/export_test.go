package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekGridDataset(t *testing.T) {
	grid := WeekGrid{Periods: 2, Cells: map[string]string{"3_2": "701 國文", "1_1": "702 英文"}}
	data := grid.Dataset()

	assert.Equal(t, []string{"節次", "一", "二", "三", "四", "五"}, data.Headers)
	require.Len(t, data.Rows, 2)
	assert.Equal(t, "1", data.Rows[0]["節次"])
	assert.Equal(t, "702 英文", data.Rows[0]["一"])
	assert.Equal(t, "701 國文", data.Rows[1]["三"])
	assert.Equal(t, "", data.Rows[1]["五"])
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(WeekGrid{Periods: 1, Cells: map[string]string{"2_1": "代701\n國文"}}.Dataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("\ufeff")))
	text := strings.TrimPrefix(string(out), "\ufeff")
	assert.True(t, strings.HasPrefix(text, "節次,一,二,三,四,五\r\n"))
	assert.Contains(t, text, "1,,\"代701\r\n國文\",,,\r\n")

	_, err = (&CSVExporter{}).Render(Dataset{})
	assert.Error(t, err)
}

func TestCSVExporterPlainWrite(t *testing.T) {
	var buf bytes.Buffer
	err := (&CSVExporter{}).Write(&buf, Dataset{Headers: []string{"節次", "一"}, Rows: []map[string]string{{"節次": "1"}}})
	require.NoError(t, err)
	assert.Equal(t, "節次,一\n1,\n", buf.String())
}

func TestPDFExporterRenderLatin(t *testing.T) {
	data := Dataset{Headers: []string{"Period", "Mon"}, Rows: []map[string]string{{"Period": "1", "Mon": "701\nMath"}}}
	out, err := NewPDFExporter("").Render(data, "Substitution", "115.02.09 - 115.02.13")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter("").Render(Dataset{}, "")
	assert.Error(t, err)
}
