package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/bom"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/model"
	"github.com/sells-group/fiber-bom/internal/monitoring"
	"github.com/sells-group/fiber-bom/internal/spatial"
	"github.com/sells-group/fiber-bom/internal/store"
)

type emptySource struct{}

func (emptySource) Fetch(_ context.Context, _ spatial.Plan, boundary string) (*feature.Set, error) {
	if boundary == "MISSING" {
		return nil, spatial.ErrUnknownBoundary
	}
	return feature.NewSet(boundary), nil
}

type memWriter struct {
	mu    sync.Mutex
	files []string
}

func (w *memWriter) Write(_, outPath string, _ []bom.LineItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append(w.files, outPath)
	return nil
}

func newTestAPI(t *testing.T) (*api, *memWriter) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	w := &memWriter{}
	metrics := monitoring.NewMetrics()
	return &api{
		driver: &batch.Driver{
			Source:    emptySource{},
			Writer:    w,
			Store:     st,
			Observer:  metrics,
			OutputDir: t.TempDir(),
		},
		store:   st,
		metrics: metrics,
	}, w
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h := buildRouter(&api{}, nil)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_CORS(t *testing.T) {
	h := buildRouter(&api{}, []string{"https://maps.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://maps.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Variants(t *testing.T) {
	h := buildRouter(&api{}, nil)

	rr := do(t, h, http.MethodGet, "/variants", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got []variantInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 4)
	assert.Equal(t, "clarity", got[0].Name)
	assert.NotEmpty(t, got[0].Entries)
}

func TestRouter_GenerateRecordsRun(t *testing.T) {
	a, w := newTestAPI(t)
	h := buildRouter(a, nil)

	rr := do(t, h, http.MethodPost, "/boms", bomRequest{Variant: "clarity", Boundaries: []string{"OLT-1", " OLT-1", "MISSING", "OLT-2"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var sum batch.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sum))
	assert.Equal(t, "clarity", sum.Variant)
	assert.Equal(t, model.RunStatusPartial, sum.Status)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 3)
	assert.Equal(t, "MISSING", sum.Results[1].Boundary)
	assert.Equal(t, model.StageFetchingFeatures, sum.Results[1].Stage)
	assert.Len(t, w.files, 2)
	require.NotEmpty(t, sum.RunID)

	rr = do(t, h, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, sum.RunID, runs[0].ID)

	rr = do(t, h, http.MethodGet, "/runs/"+sum.RunID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Len(t, run.Results, 3)

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "fiberbom_batches_total"))
}

func TestRouter_GenerateValidation(t *testing.T) {
	a, _ := newTestAPI(t)
	h := buildRouter(a, nil)

	req := httptest.NewRequest(http.MethodPost, "/boms", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/boms", bomRequest{Variant: "nope", Boundaries: []string{"A"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown variant")

	rr = do(t, h, http.MethodPost, "/boms", bomRequest{Variant: "rdof", Boundaries: []string{" ", ""}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "boundaries are required")
}

func TestRouter_GenerateFatalConfig(t *testing.T) {
	a, _ := newTestAPI(t)
	a.driver.Source = nil
	h := buildRouter(a, nil)

	rr := do(t, h, http.MethodPost, "/boms", bomRequest{Variant: "rdof", Boundaries: []string{"ESC-C02"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "no feature source")
}

func TestRouter_NoStoreOrDriver(t *testing.T) {
	h := buildRouter(&api{}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/runs", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/runs/abc", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(t, h, http.MethodPost, "/boms", bomRequest{Variant: "rdof", Boundaries: []string{"A"}}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", nil).Code)
}

func TestRouter_RunNotFoundAndBadLimit(t *testing.T) {
	a, _ := newTestAPI(t)
	h := buildRouter(a, nil)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/does-not-exist", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/runs?limit=x", nil).Code)

	rr := do(t, h, http.MethodGet, "/runs?limit=5&variant=rdof", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
