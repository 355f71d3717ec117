package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := userFrom(ctx)

	defaults, err := s.deps.Settings.Defaults(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	effective, err := s.deps.Settings.UserThresholds(ctx, user.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	overrides, err := s.deps.Settings.UserOverride(ctx, user.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"thresholds": effective,
		"overrides":  overrides,
		"defaults":   defaults,
	})
}

// handleUpdateSettings stores the caller's overrides. An empty object clears
// them.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req settings.Override
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	t, err := s.deps.Settings.UpdateUserOverride(r.Context(), user.ID, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"thresholds": t,
	})
}

func (s *Server) handleAdminGetSettings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Settings.ListDefaults(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": rows,
	})
}

type settingUpdate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// text returns the value as stored: JSON strings are unquoted, numbers are
// kept verbatim.
func (u settingUpdate) text() (string, error) {
	raw := strings.TrimSpace(string(u.Value))
	if raw == "" || raw == "null" {
		return "", apperr.NewValidationError("value", "is required")
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(u.Value, &s); err != nil {
			return "", apperr.NewValidationError("value", "invalid string")
		}
		return strings.TrimSpace(s), nil
	}
	return raw, nil
}

func (s *Server) handleAdminUpdateSetting(w http.ResponseWriter, r *http.Request) {
	var req settingUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	value, err := req.text()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	row, err := s.deps.Settings.UpdateDefault(r.Context(), strings.TrimSpace(req.Key), value)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"setting": row,
	})
}
