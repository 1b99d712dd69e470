package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/auth"
	"github.com/t77yq/autocontrol/internal/model"
	"github.com/t77yq/autocontrol/internal/monitor"
	"github.com/t77yq/autocontrol/internal/scheduler"
	"github.com/t77yq/autocontrol/internal/storage"
)

const maxBodySize = 1 << 20

// ActionInvoker calls a remote action
type ActionInvoker interface {
	Invoke(ctx context.Context, action model.Action) (*model.ActionResponse, error)
}

// StatsProvider exposes cached statistics
type StatsProvider interface {
	Snapshot() model.StatsSnapshot
	Refresh(ctx context.Context) (model.StatsSnapshot, error)
}

// HealthProvider samples host health
type HealthProvider interface {
	Check(ctx context.Context) monitor.Health
}

// Dependencies are the services the API exposes
type Dependencies struct {
	Scheduler *scheduler.Service
	Users     *auth.UserStore
	Sessions  *auth.SessionManager
	Settings  *storage.Settings
	Activity  *storage.ActivityLog
	Invoker   ActionInvoker
	Stats     StatsProvider
	Health    HealthProvider
}

// Server serves the dashboard JSON API
type Server struct {
	logger *zap.Logger
	deps   Dependencies
	mux    *http.ServeMux
}

// NewServer creates the API server and registers its routes
func NewServer(deps Dependencies, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger.Named("api"),
		deps:   deps,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/logout", s.authenticated(s.handleLogout))
	s.mux.HandleFunc("GET /api/session", s.authenticated(s.handleSession))

	s.mux.HandleFunc("GET /api/users", s.adminOnly(s.handleListUsers))
	s.mux.HandleFunc("POST /api/users", s.adminOnly(s.handleAddUser))
	s.mux.HandleFunc("DELETE /api/users/{id}", s.adminOnly(s.handleDeleteUser))
	s.mux.HandleFunc("PUT /api/users/{id}/role", s.adminOnly(s.handleSetRole))
	s.mux.HandleFunc("PUT /api/password", s.authenticated(s.handleChangePassword))

	s.mux.HandleFunc("GET /api/settings", s.authenticated(s.handleGetSettings))
	s.mux.HandleFunc("PUT /api/settings", s.adminOnly(s.handleUpdateSettings))
	s.mux.HandleFunc("POST /api/settings/test", s.adminOnly(s.handleTestConnection))

	s.mux.HandleFunc("POST /api/actions/{action}", s.authenticated(s.handleAction))
	s.mux.HandleFunc("GET /api/stats", s.authenticated(s.handleStats))
	s.mux.HandleFunc("POST /api/stats/refresh", s.authenticated(s.handleRefreshStats))

	s.mux.HandleFunc("GET /api/tasks", s.authenticated(s.handleListTasks))
	s.mux.HandleFunc("POST /api/tasks", s.adminOnly(s.handleCreateTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/toggle", s.adminOnly(s.handleToggleTask))
	s.mux.HandleFunc("POST /api/tasks/{id}/run", s.adminOnly(s.handleRunTask))
	s.mux.HandleFunc("DELETE /api/tasks/{id}", s.adminOnly(s.handleDeleteTask))

	s.mux.HandleFunc("GET /api/log", s.authenticated(s.handleLog))
	s.mux.HandleFunc("DELETE /api/log", s.adminOnly(s.handleClearLog))
	s.mux.HandleFunc("GET /api/activity", s.authenticated(s.handleActivity))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withLogging(s.withRecovery(s.mux)).ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *scheduler.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	s.writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var verr *scheduler.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrTaskNotFound), errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrProtectedUser):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, storage.ErrEmptyScriptURL),
		errors.Is(err, storage.ErrInvalidScriptURL):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
