// Package httpapi exposes analysis and findings operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// Analyzer starts runs and reports their status.
type Analyzer interface {
	StartAnalysis(ctx context.Context, snapshotID string, frameworks []models.Framework,
		depth models.Depth, actor models.Actor) (string, error)
	GetAnalysisStatus(ctx context.Context, runID, organizationID string) (*models.AnalysisRun, error)
}

// FindingsService queries and reviews findings.
type FindingsService interface {
	GetFindings(ctx context.Context, snapshotID, organizationID string, q findings.Query) (*findings.Page, error)
	GetFindingByID(ctx context.Context, findingID, organizationID string) (*models.RepositoryFinding, error)
	ReviewFinding(ctx context.Context, findingID, organizationID, reviewerUserID string,
		review findings.Review) (*models.RepositoryFinding, error)
	GetFindingsSummary(ctx context.Context, snapshotID, organizationID string) (*models.FindingsSummary, error)
	DeleteSnapshotFindings(ctx context.Context, snapshotID, organizationID, actorUserID string) (int, error)
	ListTasks(ctx context.Context, snapshotID, organizationID string) ([]models.RepositoryTask, error)
}

// Server routes API requests to the analysis and findings services.
type Server struct {
	analyzer     Analyzer
	findings     FindingsService
	auth         *Authenticator
	logger       logger.Logger
	defaultDepth models.Depth
	cfg          config.ServerConfig
}

// NewServer creates a server. A JWT secret is required.
func NewServer(analyzer Analyzer, svc FindingsService, cfg *config.Config, log logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	auth, err := NewAuthenticator(cfg.Server.JWTSecret, cfg.Server.JWTIssuer)
	if err != nil {
		return nil, err
	}
	return &Server{
		analyzer:     analyzer,
		findings:     svc,
		auth:         auth,
		logger:       log,
		defaultDepth: models.Depth(cfg.Analysis.DefaultDepth),
		cfg:          cfg.Server,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Route("/snapshots/{snapshotID}", func(r chi.Router) {
			r.Post("/analyses", s.wrap(s.handleStartAnalysis))
			r.Get("/findings", s.wrap(s.handleListFindings))
			r.Get("/findings/summary", s.wrap(s.handleFindingsSummary))
			r.Delete("/findings", s.wrap(s.handleDeleteFindings))
			r.Get("/tasks", s.wrap(s.handleListTasks))
		})
		r.Get("/analyses/{runID}", s.wrap(s.handleAnalysisStatus))
		r.Get("/findings/{findingID}", s.wrap(s.handleGetFinding))
		r.Post("/findings/{findingID}/review", s.wrap(s.handleReviewFinding))
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.Internal(apperror.CodeInternal, "internal server error", err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}

	writeJSON(w, status, errorBody{Error: errorDetail{Code: appErr.Code, Message: appErr.Message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
