package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/gbp-ops-sync/models"
	"github.com/Vector/gbp-ops-sync/syncer"
	"github.com/Vector/gbp-ops-sync/web/auth"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr       string
	APIKey     string
	CronSecret string
}

// Server is the HTTP trigger surface.
type Server struct {
	svc *Service
	srv *http.Server
	log *zap.Logger
}

// NewServer builds the server and its routes.
func NewServer(svc *Service, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		svc: svc,
		log: log,
	}

	apiAuth := auth.BearerTokenMiddleware(cfg.APIKey, log)
	cronAuth := auth.BearerTokenMiddleware(cfg.CronSecret, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /api/v1/sync/{entity}", apiAuth(http.HandlerFunc(s.handleSync)))
	mux.Handle("GET /api/v1/jobs", apiAuth(http.HandlerFunc(s.handleJobs)))
	mux.Handle("GET /api/v1/connections", apiAuth(http.HandlerFunc(s.handleListConnections)))
	mux.Handle("POST /api/v1/connections", apiAuth(http.HandlerFunc(s.handleCreateConnection)))
	mux.Handle("DELETE /api/v1/connections/{id}", apiAuth(http.HandlerFunc(s.handleDeleteConnection)))
	mux.Handle("POST /api/v1/cron/sync", cronAuth(http.HandlerFunc(s.handleCronSync)))

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		err := <-errc
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type syncRequest struct {
	Mode       string `json:"mode"`
	AccountID  string `json:"accountId"`
	LocationID string `json:"locationId"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")

	var req syncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, validationError("malformed request body"))
			return
		}
	}

	mode, err := syncer.ParseMode(req.Mode)
	if err != nil {
		writeError(w, validationError("%s", err.Error()))
		return
	}

	job, err := s.svc.TriggerSync(r.Context(), entity, mode, req.AccountID, req.LocationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCronSync(w http.ResponseWriter, r *http.Request) {
	results := s.svc.RunScheduledSync(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	params := models.SelectJobsParams{
		JobType: r.URL.Query().Get("type"),
		Status:  r.URL.Query().Get("status"),
		Limit:   50,
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, validationError("limit must be an integer between 1 and 500"))
			return
		}

		params.Limit = n
	}

	jobs, err := s.svc.Jobs(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	if jobs == nil {
		jobs = []models.SyncJob{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type createConnectionRequest struct {
	ID              string `json:"id"`
	ExternalUserID  string `json:"externalUserId"`
	Source          string `json:"source"`
	BrokerAccountID string `json:"brokerAccountId"`
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	ExpiresInSec    int    `json:"expiresIn"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, validationError("malformed request body"))
		return
	}

	conn := &models.Connection{
		ID:              req.ID,
		ExternalUserID:  req.ExternalUserID,
		Source:          models.CredentialSource(req.Source),
		BrokerAccountID: req.BrokerAccountID,
	}

	expiresIn := time.Duration(req.ExpiresInSec) * time.Second

	if err := s.svc.CreateConnection(r.Context(), conn, req.AccessToken, req.RefreshToken, expiresIn); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConnection(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := s.svc.ListConnections(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if connections == nil {
		connections = []models.Connection{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": connections})
}
