package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/autocontrol/internal/model"
)

type requestInfoKey struct{}

// requestInfo is filled in while the request is handled and read by the
// logging middleware afterwards
type requestInfo struct {
	user string
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session model.Session)

var (
	errUnauthorized = errors.New("authentication required")
	errForbidden    = errors.New("admin role required")
)

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authenticated rejects requests without a live session
func (s *Server) authenticated(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.writeError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		session, err := s.deps.Sessions.Lookup(token)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err)
			return
		}
		if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
			info.user = session.Username
		}
		next(w, r, session)
	}
}

// adminOnly rejects sessions without the admin role
func (s *Server) adminOnly(next sessionHandler) http.HandlerFunc {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, session model.Session) {
		if session.Role != model.RoleAdmin {
			s.writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		next(w, r, session)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		}
		if info.user != "" {
			fields = append(fields, zap.String("user", info.user))
		}
		s.logger.Debug("Handled request", fields...)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("Handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", p))
				s.writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
