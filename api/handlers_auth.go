package api

import (
	"net/http"
	"time"

	"rsi-cycle-tracker/auth"
	models "rsi-cycle-tracker/database/models_pkg"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userView is the public form of an account.
type userView struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

type sessionResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func newSessionResponse(sess *auth.Session) sessionResponse {
	return sessionResponse{
		Success:   true,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      newUserView(sess.User),
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.deps.Auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    newUserView(userFrom(r.Context())),
	})
}
