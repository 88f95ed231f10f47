package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditDataset() Dataset {
	return Dataset{
		Headers: []string{"id", "field", "new_value"},
		Rows: []map[string]string{
			{"id": "1", "field": "end_date", "new_value": "2026-03-01T12:00:00Z"},
			{"id": "2", "field": "status", "new_value": "=HYPERLINK(\"x\")"},
		},
	}
}

func TestCSVExporterRendersRowsInHeaderOrder(t *testing.T) {
	out, err := NewCSVExporter().Render(auditDataset())
	require.NoError(t, err)
	assert.Equal(t, "id,field,new_value\n1,end_date,2026-03-01T12:00:00Z\n2,status,\"'=HYPERLINK(\"\"x\"\")\"\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFExporterProducesDocument(t *testing.T) {
	data := auditDataset()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, map[string]string{"id": "n", "field": "end_date", "new_value": "value"})
	}
	out, err := NewPDFExporter().Render(data, "Audit log")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestTruncateKeepsShortValues(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
