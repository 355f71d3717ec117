// Package settings resolves the RSI thresholds used for a request: explicit
// request values first, then the user's overrides, then the installation
// defaults.
package settings

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/database"
	"rsi-cycle-tracker/indicator"
)

// Global setting keys.
const (
	KeyRSIPeriod      = "default_rsi_period"
	KeyUpperThreshold = "default_upper_threshold"
	KeyLowerThreshold = "default_lower_threshold"
)

// Per-user override keys.
const (
	UserKeyRSIPeriod      = "rsi_period"
	UserKeyUpperThreshold = "upper_threshold"
	UserKeyLowerThreshold = "lower_threshold"
)

// DefaultRows are seeded by migrations when missing.
func DefaultRows() []database.GlobalSetting {
	d := indicator.DefaultThresholds
	return []database.GlobalSetting{
		{Key: KeyRSIPeriod, Value: strconv.Itoa(d.RSIPeriod), Description: "Default RSI calculation period"},
		{Key: KeyUpperThreshold, Value: formatFloat(d.UpperThreshold), Description: "Default RSI upper threshold (BUY at or above)"},
		{Key: KeyLowerThreshold, Value: formatFloat(d.LowerThreshold), Description: "Default RSI lower threshold (SELL at or below)"},
	}
}

// Store is the persistence used by Service.
type Store interface {
	Globals(ctx context.Context) ([]database.GlobalSetting, error)
	SetGlobal(ctx context.Context, key, value string) (*database.GlobalSetting, error)
	UserOverrides(ctx context.Context, userID int64) ([]database.UserSetting, error)
	SetUserOverrides(ctx context.Context, userID int64, values map[string]string) error
	ClearUserOverrides(ctx context.Context, userID int64) error
}

// Override holds optional threshold values. Nil fields are not overridden.
type Override struct {
	RSIPeriod      *int     `json:"rsi_period,omitempty"`
	UpperThreshold *float64 `json:"upper_threshold,omitempty"`
	LowerThreshold *float64 `json:"lower_threshold,omitempty"`
}

// IsEmpty reports whether no field is set.
func (o Override) IsEmpty() bool {
	return o.RSIPeriod == nil && o.UpperThreshold == nil && o.LowerThreshold == nil
}

// Apply returns t with the set fields of o.
func (o Override) Apply(t indicator.Thresholds) indicator.Thresholds {
	if o.RSIPeriod != nil {
		t.RSIPeriod = *o.RSIPeriod
	}
	if o.UpperThreshold != nil {
		t.UpperThreshold = *o.UpperThreshold
	}
	if o.LowerThreshold != nil {
		t.LowerThreshold = *o.LowerThreshold
	}
	return t
}

// Service reads and updates thresholds.
type Service struct {
	store Store
	log   *zap.Logger
	mu    sync.Mutex // serialises read-merge-validate-write of updates
}

// NewService creates a settings service.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// Defaults returns the installation thresholds. Missing keys fall back to
// the built-in defaults.
func (s *Service) Defaults(ctx context.Context) (indicator.Thresholds, error) {
	rows, err := s.store.Globals(ctx)
	if err != nil {
		return indicator.Thresholds{}, apperr.Upstream("settings_store", err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return merge(indicator.DefaultThresholds, values, KeyRSIPeriod, KeyUpperThreshold, KeyLowerThreshold)
}

// Resolve returns the validated thresholds for a request.
func (s *Service) Resolve(ctx context.Context, userID int64, req Override) (indicator.Thresholds, error) {
	t, err := s.UserThresholds(ctx, userID)
	if err != nil {
		return t, err
	}
	t = req.Apply(t)
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// UserThresholds returns defaults merged with the user's overrides.
func (s *Service) UserThresholds(ctx context.Context, userID int64) (indicator.Thresholds, error) {
	t, err := s.Defaults(ctx)
	if err != nil {
		return t, err
	}
	rows, err := s.store.UserOverrides(ctx, userID)
	if err != nil {
		return t, apperr.Upstream("settings_store", err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return merge(t, values, UserKeyRSIPeriod, UserKeyUpperThreshold, UserKeyLowerThreshold)
}

// UserOverride returns only the values the user has overridden.
func (s *Service) UserOverride(ctx context.Context, userID int64) (Override, error) {
	rows, err := s.store.UserOverrides(ctx, userID)
	if err != nil {
		return Override{}, apperr.Upstream("settings_store", err)
	}
	var o Override
	for _, r := range rows {
		switch r.Key {
		case UserKeyRSIPeriod:
			if v, err := strconv.Atoi(r.Value); err == nil {
				o.RSIPeriod = &v
			}
		case UserKeyUpperThreshold:
			if v, err := strconv.ParseFloat(r.Value, 64); err == nil {
				o.UpperThreshold = &v
			}
		case UserKeyLowerThreshold:
			if v, err := strconv.ParseFloat(r.Value, 64); err == nil {
				o.LowerThreshold = &v
			}
		}
	}
	return o, nil
}

// UpdateUserOverride validates the merged thresholds and stores the set
// fields of o. An empty override clears all of the user's overrides.
func (s *Service) UpdateUserOverride(ctx context.Context, userID int64, o Override) (indicator.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.IsEmpty() {
		if err := s.store.ClearUserOverrides(ctx, userID); err != nil {
			return indicator.Thresholds{}, apperr.Upstream("settings_store", err)
		}
		return s.UserThresholds(ctx, userID)
	}

	current, err := s.UserThresholds(ctx, userID)
	if err != nil {
		return current, err
	}
	next := o.Apply(current)
	if err := next.Validate(); err != nil {
		return current, err
	}

	values := map[string]string{}
	if o.RSIPeriod != nil {
		values[UserKeyRSIPeriod] = strconv.Itoa(*o.RSIPeriod)
	}
	if o.UpperThreshold != nil {
		values[UserKeyUpperThreshold] = formatFloat(*o.UpperThreshold)
	}
	if o.LowerThreshold != nil {
		values[UserKeyLowerThreshold] = formatFloat(*o.LowerThreshold)
	}
	if err := s.store.SetUserOverrides(ctx, userID, values); err != nil {
		return current, apperr.Upstream("settings_store", err)
	}
	return next, nil
}

// ListDefaults returns the stored global rows keyed by setting key.
func (s *Service) ListDefaults(ctx context.Context) (map[string]database.GlobalSetting, error) {
	rows, err := s.store.Globals(ctx)
	if err != nil {
		return nil, apperr.Upstream("settings_store", err)
	}
	out := make(map[string]database.GlobalSetting, len(rows))
	for _, r := range rows {
		out[r.Key] = r
	}
	return out, nil
}

// UpdateDefault changes one global setting. The value must parse for its key
// and the resulting thresholds must validate as a whole.
func (s *Service) UpdateDefault(ctx context.Context, key, value string) (*database.GlobalSetting, error) {
	switch key {
	case KeyRSIPeriod, KeyUpperThreshold, KeyLowerThreshold:
	default:
		return nil, apperr.NewValidationErrorWithValue("key", "unknown setting", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.Defaults(ctx)
	if err != nil {
		return nil, err
	}
	next, err := merge(current, map[string]string{key: value}, KeyRSIPeriod, KeyUpperThreshold, KeyLowerThreshold)
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	row, err := s.store.SetGlobal(ctx, key, normalize(key, value))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, err
		}
		return nil, apperr.Upstream("settings_store", err)
	}
	s.log.Info("⚙️ Default setting updated", zap.String("key", key), zap.String("value", row.Value))
	return row, nil
}

// merge parses the values under the given period/upper/lower keys on top of t.
func merge(t indicator.Thresholds, values map[string]string, periodKey, upperKey, lowerKey string) (indicator.Thresholds, error) {
	if v, ok := values[periodKey]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return t, apperr.NewValidationErrorWithValue(periodKey, "must be an integer", v)
		}
		t.RSIPeriod = n
	}
	if v, ok := values[upperKey]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return t, apperr.NewValidationErrorWithValue(upperKey, "must be a number", v)
		}
		t.UpperThreshold = f
	}
	if v, ok := values[lowerKey]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return t, apperr.NewValidationErrorWithValue(lowerKey, "must be a number", v)
		}
		t.LowerThreshold = f
	}
	return t, nil
}

func normalize(key, value string) string {
	if key == KeyRSIPeriod {
		n, _ := strconv.Atoi(value)
		return strconv.Itoa(n)
	}
	f, _ := strconv.ParseFloat(value, 64)
	return formatFloat(f)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
