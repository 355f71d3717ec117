package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/database"
	models "rsi-cycle-tracker/database/models_pkg"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Users.List(r.Context())
	if err != nil {
		s.respondError(w, r, apperr.Upstream("users.list", err))
		return
	}
	views := make([]userView, 0, len(list))
	for i := range list {
		views = append(views, newUserView(&list[i]))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"users":   views,
	})
}

func (s *Server) handleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	s.toggleUser(w, r, "is_admin", s.deps.Users.ToggleAdmin)
}

func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	s.toggleUser(w, r, "is_active", s.deps.Users.ToggleActive)
}

// toggleUser flips one flag of another account. Admins cannot change their
// own flags, so the last admin cannot lock themselves out.
func (s *Server) toggleUser(w http.ResponseWriter, r *http.Request, flag string, toggle func(context.Context, int64) (*models.User, error)) {
	admin := userFrom(r.Context())
	id, err := getIDParam(r, "id")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if id == admin.ID {
		s.respondError(w, r, apperr.NewValidationErrorWithValue("id", "cannot change your own account flags", id))
		return
	}

	user, err := toggle(r.Context(), id)
	if err != nil {
		if !database.IsNotFound(err) {
			err = apperr.Upstream("users.toggle", err)
		}
		s.respondError(w, r, err)
		return
	}

	s.log.Info("🛡️ User flag toggled",
		zap.Int64("admin_id", admin.ID),
		zap.Int64("user_id", user.ID),
		zap.String("flag", flag),
		zap.Bool("is_admin", user.IsAdmin),
		zap.Bool("is_active", user.IsActive))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    newUserView(user),
	})
}

type statsResponse struct {
	Success     bool    `json:"success"`
	TotalUsers  int64   `json:"total_users"`
	TotalCycles int64   `json:"total_cycles"`
	OpenCycles  int64   `json:"open_cycles"`
	TotalPnL    float64 `json:"total_pnl"`
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Users.Count(r.Context())
	if err != nil {
		s.respondError(w, r, apperr.Upstream("users.count", err))
		return
	}
	stats, err := s.deps.Stats.GetStats(r.Context())
	if err != nil {
		s.respondError(w, r, apperr.Upstream("cycle_store.stats", err))
		return
	}
	respondJSON(w, http.StatusOK, statsResponse{
		Success:     true,
		TotalUsers:  users,
		TotalCycles: stats.TotalCycles,
		OpenCycles:  stats.OpenCycles,
		TotalPnL:    stats.TotalPnL,
	})
}
