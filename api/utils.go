// Handlers are distributed across multiple files:
// - handlers_auth.go: signup, login, verify
// - handlers_market.go: symbols, scanner, analysis
// - handlers_trade.go: cycles, trades, manual sells
// - handlers_settings.go: user and admin settings
// - handlers_admin.go: user management and stats
// - handlers_config.go: health check, event streams
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"rsi-cycle-tracker/apperr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a single JSON object into dst. Unknown fields are
// rejected so typos in threshold names do not pass silently.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewValidationError("body", "is required")
		}
		return apperr.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}

// normalizeSymbol upper-cases and trims a ticker.
func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// getIDParam parses a positive integer path value.
func getIDParam(r *http.Request, key string) (int64, error) {
	raw := r.PathValue(key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NewValidationErrorWithValue(key, "must be a positive integer", raw)
	}
	return id, nil
}
