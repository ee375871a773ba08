package batch

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fiber-bom/internal/model"
)

func testSummary() *Summary {
	s := &Summary{
		RunID:    "run-1",
		Variant:  "rdof",
		Template: "template/RDOF.xlsx",
		Started:  fixedNow,
		Duration: 2500 * time.Millisecond,
	}
	s.add(model.BoundaryResult{Boundary: "ESC-C02", Stage: model.StageDone, Status: model.BoundaryOK, File: "out/ESC-C02_BOM_20240309.xlsx", Items: 51, Duration: time.Second})
	s.add(model.BoundaryResult{Boundary: "ESC-X", Stage: model.StageFetchingFeatures, Status: model.BoundaryErrored, Error: "spatial: boundary not found"})
	s.Status = model.StatusFor(s.Succeeded, s.Failed)
	return s
}

func TestSummary_WriteYAML(t *testing.T) {
	dir := t.TempDir()
	path, err := testSummary().WriteYAML(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "batch_20240309-101500.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "rdof", doc["variant"])
	assert.Equal(t, "partial", doc["status"])
	assert.Equal(t, "2.5s", doc["duration"])
	assert.Equal(t, 1, doc["failed"])

	entries, ok := doc["boundaries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	second := entries[1].(map[string]any)
	assert.Equal(t, "fetching_features", second["stage"])
	assert.Equal(t, "spatial: boundary not found", second["error"])
}

func TestSummary_Print(t *testing.T) {
	var buf bytes.Buffer
	testSummary().Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "rdof: 1 succeeded, 1 failed (partial)")
	assert.Contains(t, out, "out/ESC-C02_BOM_20240309.xlsx")
	assert.Contains(t, out, "[fetching_features] spatial: boundary not found")
}
