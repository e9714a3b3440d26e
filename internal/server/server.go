// Package server exposes cycle control and single-lead operations over
// HTTP for the lead board front-end.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/extract"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/orchestrator"
)

// Runner is the orchestrator surface the server drives.
type Runner interface {
	StartCycle(ctx context.Context) (string, error)
	ExecutionStatus() orchestrator.ExecutionStatus
	Control() *orchestrator.Control
	ExtractPhoneFor(ctx context.Context, leadID int64) (extract.Result, error)
	StartOutreachFor(ctx context.Context, leadID int64) (*model.Conversation, error)
}

// Config configures the server.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Server serves the control API. Work it starts in the background runs on
// the context given to New, not on the request's.
type Server struct {
	runner Runner
	cfg    Config
	ctx    context.Context
	wg     sync.WaitGroup
}

// New creates a Server.
func New(ctx context.Context, runner Runner, cfg Config) *Server {
	return &Server{runner: runner, cfg: cfg, ctx: ctx}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Post("/run", s.handleRun)
	r.Post("/stop", s.handleControl(func(c *orchestrator.Control) { c.RequestStop() }))
	r.Post("/pause", s.handleControl(func(c *orchestrator.Control) { c.RequestPause() }))
	r.Post("/resume", s.handleControl(func(c *orchestrator.Control) { c.RequestResume() }))
	r.Post("/extract-phone", s.handleLead("extract-phone", func(ctx context.Context, id int64) error {
		res, err := s.runner.ExtractPhoneFor(ctx, id)
		if err == nil && res.Error != "" {
			zap.L().Warn("server: extraction finished with step failures", zap.Int64("lead_id", id), zap.String("error", res.Error))
		}
		return err
	}))
	r.Post("/prospect", s.handleLead("prospect", func(ctx context.Context, id int64) error {
		_, err := s.runner.StartOutreachFor(ctx, id)
		return err
	}))
	return r
}

// ListenAndServe serves until ctx is done, then shuts down and waits for
// background lead operations.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	s.wg.Wait()
	return nil
}

// Wait blocks until background lead operations finish.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.ExecutionStatus())
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	id, err := s.runner.StartCycle(s.ctx)
	if err != nil {
		if eris.Is(err, orchestrator.ErrCycleRunning) {
			writeError(w, http.StatusConflict, "cycle already running")
			return
		}
		zap.L().Error("server: start cycle", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start cycle")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "cycle_id": id})
}

func (s *Server) handleControl(apply func(c *orchestrator.Control)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		apply(s.runner.Control())
		writeJSON(w, http.StatusOK, s.runner.ExecutionStatus())
	}
}

type leadRequest struct {
	LeadID int64 `json:"lead_id"`
}

func (s *Server) handleLead(op string, fn func(ctx context.Context, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.LeadID <= 0 {
			writeError(w, http.StatusBadRequest, "lead_id is required")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			log := zap.L().With(zap.String("op", op), zap.Int64("lead_id", req.LeadID))
			if err := fn(s.ctx, req.LeadID); err != nil {
				log.Error("server: lead operation failed", zap.Error(err))
				return
			}
			log.Info("server: lead operation complete")
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "lead_id": req.LeadID})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
