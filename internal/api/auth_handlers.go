package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/auth"
	"github.com/t77yq/autocontrol/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string     `json:"token,omitempty"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// userView is a user without its password hash
type userView struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toUserView(u model.User) userView {
	return userView{ID: u.ID, Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.deps.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		s.deps.Activity.Add(req.Username, "login", false)
		s.logger.Warn("Failed login", zap.String("username", req.Username))
		s.writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
		return
	}

	session := s.deps.Sessions.Create(user)
	s.deps.Activity.Add(user.Username, "login", true)
	s.logger.Info("User logged in", zap.String("username", user.Username))

	s.writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.Token,
		Username:  session.Username,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, session model.Session) {
	s.deps.Sessions.Revoke(session.Token)
	s.deps.Activity.Add(session.Username, "logout", true)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, session model.Session) {
	s.writeJSON(w, http.StatusOK, sessionResponse{
		Username:  session.Username,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, session model.Session) {
	users := s.deps.Users.List()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type addUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

func (s *Server) handleAddUser(w http.ResponseWriter, r *http.Request, session model.Session) {
	var req addUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Role == "" {
		req.Role = model.RoleViewer
	}

	user, err := s.deps.Users.Add(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "add user "+user.Username, true)
	s.writeJSON(w, http.StatusCreated, toUserView(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, session model.Session) {
	user, err := s.deps.Users.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Sessions.RevokeUser(user.Username)
	s.deps.Activity.Add(session.Username, "delete user "+user.Username, true)
	w.WriteHeader(http.StatusNoContent)
}

type setRoleRequest struct {
	Role model.Role `json:"role"`
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request, session model.Session) {
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := s.deps.Users.SetRole(r.Context(), r.PathValue("id"), req.Role)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	// sessions carry the role they were created with
	s.deps.Sessions.RevokeUser(user.Username)
	s.deps.Activity.Add(session.Username, "set role of "+user.Username+" to "+string(user.Role), true)
	s.writeJSON(w, http.StatusOK, toUserView(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, session model.Session) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.deps.Users.ChangePassword(r.Context(), session.Username, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.deps.Activity.Add(session.Username, "change password", false)
		s.writeError(w, http.StatusForbidden, err)
		return
	}
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.deps.Activity.Add(session.Username, "change password", true)
	w.WriteHeader(http.StatusNoContent)
}
