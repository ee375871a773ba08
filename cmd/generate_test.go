package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/batch"
)

func TestCollectBoundaries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundaries.csv")
	require.NoError(t, os.WriteFile(path, []byte("LCP,Notes\nESC-C04,second\nESC-C07,third\n"), 0o644))

	got, err := collectBoundaries("ESC-C02, ESC-C04", path, batch.ListOptions{Column: "lcp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ESC-C02", "ESC-C04", "ESC-C07"}, got)

	got, err = collectBoundaries("OLT-1,,OLT-2", "", batch.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"OLT-1", "OLT-2"}, got)
}

func TestCollectBoundaries_Errors(t *testing.T) {
	_, err := collectBoundaries(" , ", "", batch.ListOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no boundaries given")

	_, err = collectBoundaries("", filepath.Join(t.TempDir(), "missing.txt"), batch.ListOptions{})
	require.Error(t, err)
}
