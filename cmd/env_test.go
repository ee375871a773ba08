package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/config"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "test.db")},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestScratchSchema(t *testing.T) {
	a := scratchSchema("bom_scratch")
	b := scratchSchema("bom_scratch")
	assert.True(t, strings.HasPrefix(a, "bom_scratch_"))
	assert.Len(t, a, len("bom_scratch_")+8)
	assert.NotEqual(t, a, b)
	assert.True(t, spatial.ValidIdent(a))
}

func TestTemplateOverrides(t *testing.T) {
	cfg = &config.Config{Templates: config.TemplatesConfig{RDOF: "t/rdof.xlsx"}}

	assert.Equal(t, map[string]string{"rdof": "t/rdof.xlsx"}, templateOverrides())
}

func TestInitBOM_ValidatesConfig(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	_, err := initBOM(context.Background(), "generate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spatial.database_url is required")
}
