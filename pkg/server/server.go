// Package server exposes a read-only HTTP view of a computed fact set.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/pkg/taint"
)

// App holds server dependencies.
type App struct {
	facade   *taint.Facade
	findings []taint.Finding
	logger   log.Logger
}

// NewApp creates an App answering from q. findings may be nil.
func NewApp(q *taint.Facade, findings []taint.Finding, logger log.Logger) *App {
	if logger == nil {
		logger = log.NewNop()
	}
	if findings == nil {
		findings = []taint.Finding{}
	}
	return &App{facade: q, findings: findings, logger: logger}
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tainted", a.handleTainted)
		r.Get("/provenance", a.handleProvenance)
		r.Get("/argument", a.handleArgument)
		r.Get("/findings", a.handleFindings)
		r.Get("/stats", a.handleStats)
	})
	return r
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (a *App) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving fact set", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type taintedResponse struct {
	Variable string `json:"variable"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
	Tainted  bool   `json:"tainted"`
}

func (a *App) handleTainted(w http.ResponseWriter, r *http.Request) {
	name, line, ok := varAndLine(w, r)
	if !ok {
		return
	}
	file := r.URL.Query().Get("file")

	resp := taintedResponse{Variable: name, File: file, Line: line}
	if file != "" {
		resp.Tainted = a.facade.IsTaintedIn(file, name, line)
	} else {
		resp.Tainted = a.facade.IsTainted(name, line)
	}
	writeJSON(w, resp)
}

func (a *App) handleProvenance(w http.ResponseWriter, r *http.Request) {
	name, line, ok := varAndLine(w, r)
	if !ok {
		return
	}
	prov, found := a.facade.Provenance(name, line)
	if !found {
		http.Error(w, "variable not tainted at line", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"variable": name, "line": line, "provenance": prov})
}

func (a *App) handleArgument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	file, callee := q.Get("file"), q.Get("callee")
	if file == "" || callee == "" {
		http.Error(w, "missing query parameter file or callee", http.StatusBadRequest)
		return
	}
	line, err := strconv.Atoi(q.Get("line"))
	if err != nil {
		http.Error(w, "invalid line", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(q.Get("index"))
	if err != nil || index < 0 {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}

	arg, tainted := a.facade.TaintedArgument(file, line, callee, index)
	resp := map[string]interface{}{"tainted": tainted}
	if tainted {
		resp["argument"] = arg
	}
	writeJSON(w, resp)
}

func (a *App) handleFindings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.findings)
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.facade.Stats())
}

func varAndLine(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	q := r.URL.Query()
	name := q.Get("var")
	if name == "" {
		http.Error(w, "missing query parameter var", http.StatusBadRequest)
		return "", 0, false
	}
	line, err := strconv.Atoi(q.Get("line"))
	if err != nil {
		http.Error(w, "invalid line", http.StatusBadRequest)
		return "", 0, false
	}
	return name, line, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
