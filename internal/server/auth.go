package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptix/hub/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// agentAuth checks the X-Agent-Password header when an agent password is
// configured. Without one, agents are accepted as-is.
func (s *Server) agentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AgentPasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		pw := r.Header.Get("X-Agent-Password")
		if pw == "" {
			writeError(w, http.StatusUnauthorized, "missing X-Agent-Password header")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AgentPasswordHash), []byte(pw)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth accepts a session token (Authorization: Bearer or ?token=
// for browser sockets) or admin basic auth.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok {
			if user == "admin" && s.checkAdminPassword(pass) {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid password")
			return
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sess, err := s.store.GetSession(r.Context(), token)
		if err != nil {
			s.logger.Error("failed to load session", "err", err)
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		if sess == nil || time.Now().After(sess.ExpiresAt) {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (s *Server) checkAdminPassword(pw string) bool {
	if s.cfg.AdminPasswordHash == "" || pw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(pw)) == nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.checkAdminPassword(req.Password) {
		s.logger.Warn("failed login attempt", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	now := time.Now().UTC()
	sess := &models.Session{
		Token:     uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.CreateSession(r.Context(), sess); err != nil {
		s.logger.Error("failed to create session", "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt})
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
