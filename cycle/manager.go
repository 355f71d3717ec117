package cycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"rsi-cycle-tracker/apperr"
	"rsi-cycle-tracker/indicator"
	"rsi-cycle-tracker/market"
)

// Eligibility is the buy gate evaluated by the caller for the buy bar.
type Eligibility struct {
	Signal indicator.SignalClass
	CanBuy bool
}

// OpenRequest describes a buy.
type OpenRequest struct {
	UserID int64
	Symbol string
	Date   market.Date
	Price  float64
	RSI    float64
}

// Validate checks the buy fields.
func (r OpenRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return apperr.NewValidationError("symbol", "is required")
	}
	if r.Price <= 0 {
		return apperr.NewValidationErrorWithValue("price", "must be positive", r.Price)
	}
	if r.Date.IsZero() {
		return apperr.NewValidationError("date", "is required")
	}
	return nil
}

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// Confirmation is the phrase manual closes must carry.
	Confirmation string
	// StoreTimeout bounds each store call; zero disables the bound.
	StoreTimeout time.Duration
}

// Manager applies cycle transitions one (user, symbol) at a time.
type Manager struct {
	store  Store
	locker Locker
	events EventSink
	cfg    ManagerConfig
	log    *zap.Logger
	now    func() time.Time
}

// NewManager creates a Manager. A nil locker uses an in-process KeyedMutex;
// a nil sink discards events.
func NewManager(store Store, locker Locker, events EventSink, cfg ManagerConfig, log *zap.Logger) *Manager {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if events == nil {
		events = discardSink{}
	}
	if cfg.Confirmation == "" {
		cfg.Confirmation = DefaultConfirmation
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, locker: locker, events: events, cfg: cfg, log: log, now: time.Now}
}

// Confirmation returns the phrase required by ManualClose.
func (m *Manager) Confirmation() string {
	return m.cfg.Confirmation
}

// Open starts a new cycle. Order of checks: an existing open cycle wins over
// eligibility, so a held symbol always reports ErrAlreadyOpen.
func (m *Manager) Open(ctx context.Context, req OpenRequest, elig Eligibility) (*TradeCycle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock, err := m.lock(ctx, req.UserID, req.Symbol)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := m.findOpen(ctx, req.UserID, req.Symbol)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyOpen
	}
	if elig.Signal != indicator.SignalBuy || !elig.CanBuy {
		return nil, ErrNotEligible
	}

	var number int
	err = m.call(ctx, "cycle_store.next_number", func(ctx context.Context) error {
		var err error
		number, err = m.store.NextCycleNumber(ctx, req.UserID, req.Symbol)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := NewCycle(req.UserID, req.Symbol, number, req.Date, req.Price, req.RSI)
	if err := m.call(ctx, "cycle_store.create", func(ctx context.Context) error {
		return m.store.Create(ctx, &c)
	}); err != nil {
		return nil, err
	}

	m.log.Info("🟢 Cycle opened",
		zap.Int64("user_id", c.UserID),
		zap.String("symbol", c.Symbol),
		zap.Int("cycle_number", c.CycleNumber),
		zap.Float64("buy_price", c.BuyPrice),
		zap.Float64("tsl", c.TSLTriggerPrice))
	m.publish(ctx, EventOpened, c)
	return &c, nil
}

// Observe folds the bar into an open cycle. A strictly higher high is
// persisted with a compare-and-swap, so concurrent observers never lower it
// and no lock is needed. One audit row is kept per bar date.
func (m *Manager) Observe(ctx context.Context, c *TradeCycle, bar market.PriceBar) (Observation, error) {
	obs := Observe(*c, bar.Close)
	if !c.IsOpen() {
		return obs, nil
	}

	if obs.NewHigh {
		var raised bool
		err := m.call(ctx, "cycle_store.raise_high", func(ctx context.Context) error {
			var err error
			raised, err = m.store.RaiseHigh(ctx, c.ID, obs.HighestPrice, obs.TSLPrice)
			return err
		})
		if err != nil {
			return obs, err
		}
		if raised {
			c.HighestPriceAfterBuy = obs.HighestPrice
			c.TSLTriggerPrice = obs.TSLPrice
			m.log.Debug("📈 Trailing stop raised",
				zap.String("symbol", c.Symbol),
				zap.Float64("highest", obs.HighestPrice),
				zap.Float64("tsl", obs.TSLPrice))
			m.publish(ctx, EventTrailingUpdated, *c)
		}
	}

	err := m.call(ctx, "cycle_store.record_observation", func(ctx context.Context) error {
		return m.store.RecordObservation(ctx, c.ID, bar.Date, bar.Close, obs.NewHigh, obs.TSLPrice)
	})
	return obs, err
}

// AutoClose closes c with sell_reason AUTOMATIC.
func (m *Manager) AutoClose(ctx context.Context, c *TradeCycle, req CloseRequest, trigger CloseTrigger) (*TradeCycle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		return nil, ErrNotOpen
	}
	return m.closeLocked(ctx, c.UserID, c.Symbol, c.ID, req, AutomaticReason, trigger)
}

// ManualClose closes the open cycle of (userID, symbol) with a user reason.
// The reason and confirmation are checked before any lock or write.
func (m *Manager) ManualClose(ctx context.Context, userID int64, symbol string, req CloseRequest, reason, confirmation string) (*TradeCycle, error) {
	reason, err := ValidateManualClose(reason, confirmation, m.cfg.Confirmation)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return m.closeLocked(ctx, userID, symbol, 0, req, reason, TriggerManual)
}

// closeLocked closes the open cycle of (userID, symbol). A non-zero wantID
// must match the open cycle, otherwise it was closed in the meantime.
func (m *Manager) closeLocked(ctx context.Context, userID int64, symbol string, wantID int64, req CloseRequest, reason string, trigger CloseTrigger) (*TradeCycle, error) {
	unlock, err := m.lock(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := m.findOpen(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if current == nil || (wantID != 0 && current.ID != wantID) {
		return nil, ErrNotOpen
	}

	closed, err := Close(*current, req, reason, trigger)
	if err != nil {
		return nil, err
	}
	if err := m.call(ctx, "cycle_store.close", func(ctx context.Context) error {
		return m.store.Close(ctx, &closed)
	}); err != nil {
		return nil, err
	}

	m.log.Info("🔴 Cycle closed",
		zap.Int64("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int("cycle_number", closed.CycleNumber),
		zap.String("reason", closed.SellReason),
		zap.String("trigger", string(closed.CloseTrigger)),
		zap.Float64("profit_loss_percent", closed.ProfitLossPercent))
	m.publish(ctx, EventClosed, closed)
	return &closed, nil
}

// FindOpen returns the open cycle of (userID, symbol), or nil.
func (m *Manager) FindOpen(ctx context.Context, userID int64, symbol string) (*TradeCycle, error) {
	return m.findOpen(ctx, userID, symbol)
}

// History lists a user's cycles newest first; symbol may be empty.
func (m *Manager) History(ctx context.Context, userID int64, symbol string) ([]TradeCycle, error) {
	var out []TradeCycle
	err := m.call(ctx, "cycle_store.list", func(ctx context.Context) error {
		var err error
		out, err = m.store.List(ctx, userID, symbol)
		return err
	})
	return out, err
}

// OpenCycles returns the user's open cycles keyed by symbol.
func (m *Manager) OpenCycles(ctx context.Context, userID int64) (map[string]*TradeCycle, error) {
	var list []TradeCycle
	err := m.call(ctx, "cycle_store.list_open", func(ctx context.Context) error {
		var err error
		list, err = m.store.ListOpen(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*TradeCycle, len(list))
	for i := range list {
		out[list[i].Symbol] = &list[i]
	}
	return out, nil
}

func (m *Manager) findOpen(ctx context.Context, userID int64, symbol string) (*TradeCycle, error) {
	var c *TradeCycle
	err := m.call(ctx, "cycle_store.find_open", func(ctx context.Context) error {
		var err error
		c, err = m.store.FindOpen(ctx, userID, symbol)
		return err
	})
	return c, err
}

func (m *Manager) lock(ctx context.Context, userID int64, symbol string) (func(), error) {
	unlock, err := m.locker.Lock(ctx, LockKey(userID, symbol))
	if err != nil {
		return nil, apperr.Upstream("cycle_lock", err)
	}
	return unlock, nil
}

// call runs a store operation under the store timeout. Domain errors pass
// through; anything else is reported as an upstream failure.
func (m *Manager) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if m.cfg.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.StoreTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if err == nil || errors.Is(err, ErrAlreadyOpen) || errors.Is(err, ErrNotOpen) {
		return err
	}
	return apperr.Upstream(op, err)
}

func (m *Manager) publish(ctx context.Context, t EventType, c TradeCycle) {
	m.events.Publish(ctx, Event{Type: t, UserID: c.UserID, Cycle: c, At: m.now()})
}
