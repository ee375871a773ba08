package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/bom"
	"github.com/sells-group/fiber-bom/internal/model"
	"github.com/sells-group/fiber-bom/internal/monitoring"
	"github.com/sells-group/fiber-bom/internal/store"
)

var servePort int

// api serves the HTTP endpoints. Any field may be nil; the endpoints that
// need it answer 503.
type api struct {
	driver  *batch.Driver
	store   store.Store
	metrics *monitoring.Metrics

	// batches share one scratch workspace, so they run one at a time
	mu sync.Mutex
}

type bomRequest struct {
	Variant    string   `json:"variant"`
	Boundaries []string `json:"boundaries"`
}

// buildRouter wires the endpoints behind CORS and panic recovery.
func buildRouter(a *api, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}
	r.Get("/variants", a.handleVariants)
	r.Get("/runs", a.handleListRuns)
	r.Get("/runs/{id}", a.handleGetRun)
	r.Post("/boms", a.handleGenerate)
	return r
}

func (a *api) handleVariants(w http.ResponseWriter, _ *http.Request) {
	var out []variantInfo
	for _, v := range bom.Variants() {
		tmpl := v.Template
		if a.driver != nil {
			tmpl = a.driver.TemplateFor(v)
		}
		out = append(out, describeVariant(v, tmpl))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  model.RunStatus(q.Get("status")),
		Variant: q.Get("variant"),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := a.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("serve: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (a *api) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	run, err := a.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("serve: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGenerate runs a batch synchronously and answers with its summary.
func (a *api) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req bomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	v, err := bom.Lookup(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	boundaries := batch.NormalizeBoundaries(req.Boundaries)
	if len(boundaries) == 0 {
		writeError(w, http.StatusBadRequest, "boundaries are required")
		return
	}
	if a.driver == nil {
		writeError(w, http.StatusServiceUnavailable, "batch driver is not configured")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	sum, err := a.driver.Run(r.Context(), v, boundaries)
	switch {
	case batch.IsFatal(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil && sum == nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		// cancelled mid-batch; the partial summary is still useful
		writeJSON(w, http.StatusServiceUnavailable, sum)
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("serve: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the BOM API and Prometheus metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initBOM(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		handler := buildRouter(&api{driver: env.Driver, store: env.Store, metrics: env.Metrics}, cfg.Server.AllowedOrigins)
		return listenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port), handler)
	},
}

// listenAndServe blocks until ctx is done or the listener fails.
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a batch answers only when every boundary is done
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return eris.Wrap(err, "server listen")
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
