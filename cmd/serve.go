package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/estimator/internal/estimate"
	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/render"
	"github.com/sells-group/estimator/internal/sheet"
	"github.com/sells-group/estimator/internal/store"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	warningsHeader  = "X-Estimator-Warnings"
	shutdownTimeout = 10 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for estimates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			store:     env.Store,
			pipeline:  env.Pipeline,
			layout:    templateLayout(),
			maxUpload: cfg.Server.MaxUploadBytes,
		}
		return startServer(ctx, newRouter(api, cfg.Server.AllowedOrigins), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}

// apiServer holds the dependencies of the HTTP handlers.
type apiServer struct {
	store     store.Store
	pipeline  *estimate.Pipeline
	layout    sheet.Layout
	maxUpload int64
}

// newRouter builds the API routes.
func newRouter(api *apiServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{warningsHeader},
		MaxAge:         300,
	}))

	r.Get("/health", api.health)
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", api.listEstimates)
		r.Post("/", api.createEstimate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", api.getEstimate)
			r.Get("/html", api.estimateHTML)
			r.Get("/xlsx", api.estimateXLSX)
			r.Post("/template", api.fillTemplate)
		})
	})
	return r
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *apiServer) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiServer) listEstimates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EstimateFilter{
		Provider: q.Get("provider"),
		JobName:  q.Get("job"),
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	ests, err := a.store.ListEstimates(r.Context(), filter)
	if err != nil {
		zap.L().Error("list estimates", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list estimates failed")
		return
	}
	if ests == nil {
		ests = []model.Estimate{}
	}
	writeJSON(w, http.StatusOK, ests)
}

func (a *apiServer) createEstimate(w http.ResponseWriter, r *http.Request) {
	var job model.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	today, err := resolveToday(r.URL.Query().Get("today"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid today, want YYYY-MM-DD")
		return
	}

	est, err := a.pipeline.Run(r.Context(), job, today)
	if err != nil {
		zap.L().Error("estimate failed", zap.String("job", job.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "estimate failed")
		return
	}
	writeJSON(w, http.StatusCreated, est)
}

func (a *apiServer) getEstimate(w http.ResponseWriter, r *http.Request) {
	est, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (a *apiServer) estimateHTML(w http.ResponseWriter, r *http.Request) {
	est, ok := a.lookup(w, r)
	if !ok {
		return
	}
	html, err := render.HTML(est.Items, est.Totals, a.pipeline.Calculator().Rates())
	if err != nil {
		zap.L().Error("render html", zap.String("id", est.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render failed")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

func (a *apiServer) estimateXLSX(w http.ResponseWriter, r *http.Request) {
	est, ok := a.lookup(w, r)
	if !ok {
		return
	}
	data, err := sheet.WriteEstimate(est.Items, est.Totals)
	if err != nil {
		zap.L().Error("write workbook", zap.String("id", est.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeWorkbook(w, est.ID, data)
}

func (a *apiServer) fillTemplate(w http.ResponseWriter, r *http.Request) {
	est, ok := a.lookup(w, r)
	if !ok {
		return
	}

	if r.ContentLength > a.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "template too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "template too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("template")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing template file")
		return
	}
	defer file.Close() //nolint:errcheck

	tmpl, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read template failed")
		return
	}

	res, err := sheet.Fill(tmpl, est.Items, a.layout)
	if err != nil {
		if errors.Is(err, sheet.ErrInvalidTemplate) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		zap.L().Warn("fill template", zap.String("id", est.ID), zap.Error(err))
		writeError(w, http.StatusBadRequest, "template could not be filled")
		return
	}

	for _, warn := range res.Warnings {
		w.Header().Add(warningsHeader, warn)
	}
	writeWorkbook(w, est.ID, res.Data)
}

// lookup loads the estimate named by the {id} route parameter, writing a
// 404 or 500 response when it cannot.
func (a *apiServer) lookup(w http.ResponseWriter, r *http.Request) (*model.Estimate, bool) {
	id := chi.URLParam(r, "id")
	est, err := a.store.GetEstimate(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "estimate not found")
			return nil, false
		}
		zap.L().Error("get estimate", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "load estimate failed")
		return nil, false
	}
	return est, true
}

func writeWorkbook(w http.ResponseWriter, id string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "estimate-"+truncateID(id)+".xlsx"))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt parses an optional integer query parameter.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid integer %q", s)
	}
	return n, nil
}
