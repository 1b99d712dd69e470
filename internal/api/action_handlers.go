package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

var (
	errUnknownAction       = errors.New("unknown action")
	errConfirmationMissing = errors.New("deleting responses requires confirm=true")
	errInvalidLimit        = errors.New("limit must be a non-negative integer")
)

type actionResult struct {
	Success bool                       `json:"success"`
	Message string                     `json:"message"`
	Data    map[string]json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, session model.Session) {
	action := model.Action(r.PathValue("action"))
	if !action.Valid() {
		s.writeError(w, http.StatusNotFound, errUnknownAction)
		return
	}
	if session.Role != model.RoleAdmin && !action.ReadOnly() {
		s.writeError(w, http.StatusForbidden, errForbidden)
		return
	}
	if action == model.ActionDelete && r.URL.Query().Get("confirm") != "true" {
		s.writeError(w, http.StatusBadRequest, errConfirmationMissing)
		return
	}

	resp, err := s.deps.Invoker.Invoke(r.Context(), action)
	s.deps.Activity.Add(session.Username, action.Label(), err == nil)
	if err != nil {
		s.logger.Warn("Manual action failed",
			zap.String("action", string(action)),
			zap.String("user", session.Username),
			zap.Error(err))
		s.writeJSON(w, http.StatusBadGateway, actionResult{Success: false, Message: err.Error()})
		return
	}

	payload, err := resp.Payload()
	if err != nil {
		s.logger.Warn("Failed to decode action payload", zap.Error(err))
	}
	delete(payload, "message")
	s.writeJSON(w, http.StatusOK, actionResult{
		Success: true,
		Message: action.SuccessMessage(),
		Data:    payload,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, session model.Session) {
	s.writeJSON(w, http.StatusOK, s.deps.Stats.Snapshot())
}

func (s *Server) handleRefreshStats(w http.ResponseWriter, r *http.Request, session model.Session) {
	snapshot, err := s.deps.Stats.Refresh(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, snapshot)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

type settingsView struct {
	ScriptURL string `json:"scriptUrl"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, session model.Session) {
	u, err := s.deps.Settings.ScriptURL(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settingsView{ScriptURL: u})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, session model.Session) {
	var req settingsView
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	saved, err := s.deps.Settings.SetScriptURL(r.Context(), req.ScriptURL)
	if err != nil {
		s.deps.Activity.Add(session.Username, "update settings", false)
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "update settings", true)
	s.writeJSON(w, http.StatusOK, settingsView{ScriptURL: saved})
}

type connectionResult struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request, session model.Session) {
	_, err := s.deps.Invoker.Invoke(r.Context(), model.ActionStats)
	s.deps.Activity.Add(session.Username, "test connection", err == nil)
	if err != nil {
		s.writeJSON(w, http.StatusOK, connectionResult{Connected: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, connectionResult{Connected: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.deps.Health.Check(r.Context())
	health.CheckerActive = s.deps.Scheduler.CheckerRunning()
	health.TaskCount = len(s.deps.Scheduler.Tasks())
	s.writeJSON(w, http.StatusOK, health)
}
