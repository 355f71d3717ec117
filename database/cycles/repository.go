// Package cycles is the GORM implementation of cycle.Store.
package cycles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rsi-cycle-tracker/cycle"
	models "rsi-cycle-tracker/database/models_pkg"
	"rsi-cycle-tracker/market"
)

// Repository handles database operations for trade cycles
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new cycles repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ cycle.Store = (*Repository)(nil)

// FindOpen implements cycle.Store.
func (r *Repository) FindOpen(ctx context.Context, userID int64, symbol string) (*cycle.TradeCycle, error) {
	var row models.TradeCycle
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND status = ?", userID, symbol, cycle.StatusOpen).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindOpen: %w", err)
	}
	c := toDomain(row)
	return &c, nil
}

// NextCycleNumber implements cycle.Store.
func (r *Repository) NextCycleNumber(ctx context.Context, userID int64, symbol string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.TradeCycle{}).
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Select("COALESCE(MAX(cycle_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("NextCycleNumber: %w", err)
	}
	return max + 1, nil
}

// Create implements cycle.Store. A unique violation on either the open-cycle
// index or the cycle number index means another open raced this one.
func (r *Repository) Create(ctx context.Context, c *cycle.TradeCycle) error {
	row := toRow(*c)
	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return cycle.ErrAlreadyOpen
	}
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	c.UpdatedAt = row.UpdatedAt
	return nil
}

// RaiseHigh implements cycle.Store.
func (r *Repository) RaiseHigh(ctx context.Context, id int64, highest, tsl float64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.TradeCycle{}).
		Where("id = ? AND status = ? AND highest_price_after_buy < ?", id, cycle.StatusOpen, highest).
		Updates(map[string]interface{}{
			"highest_price_after_buy": highest,
			"tsl_trigger_price":       tsl,
			"updated_at":              time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("RaiseHigh: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Close implements cycle.Store.
func (r *Repository) Close(ctx context.Context, c *cycle.TradeCycle) error {
	if c.Exit == nil {
		return fmt.Errorf("Close: cycle %d has no exit", c.ID)
	}
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.TradeCycle{}).
		Where("id = ? AND status = ?", c.ID, cycle.StatusOpen).
		Updates(map[string]interface{}{
			"status":              cycle.StatusClosed,
			"sell_date":           c.SellDate.Time,
			"sell_price":          c.SellPrice,
			"sell_rsi":            c.SellRSI,
			"profit_loss":         c.ProfitLoss,
			"profit_loss_percent": c.ProfitLossPercent,
			"sell_reason":         c.SellReason,
			"close_trigger":       string(c.CloseTrigger),
			"updated_at":          now,
		})
	if result.Error != nil {
		return fmt.Errorf("Close: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return cycle.ErrNotOpen
	}
	c.UpdatedAt = now
	return nil
}

// RecordObservation implements cycle.Store.
func (r *Repository) RecordObservation(ctx context.Context, cycleID int64, date market.Date, price float64, newHigh bool, tsl float64) error {
	row := models.PriceTracking{
		CycleID:    cycleID,
		Date:       date.Time,
		ClosePrice: price,
		IsNewHigh:  newHigh,
		TSLPrice:   tsl,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("RecordObservation: %w", err)
	}
	return nil
}

// List implements cycle.Store.
func (r *Repository) List(ctx context.Context, userID int64, symbol string) ([]cycle.TradeCycle, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}

	var rows []models.TradeCycle
	if err := query.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return toDomainSlice(rows), nil
}

// ListOpen implements cycle.Store.
func (r *Repository) ListOpen(ctx context.Context, userID int64) ([]cycle.TradeCycle, error) {
	var rows []models.TradeCycle
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, cycle.StatusOpen).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListOpen: %w", err)
	}
	return toDomainSlice(rows), nil
}

// Tracking returns the audit rows of a cycle ordered by date.
func (r *Repository) Tracking(ctx context.Context, cycleID int64) ([]models.PriceTracking, error) {
	var rows []models.PriceTracking
	if err := r.db.WithContext(ctx).Where("cycle_id = ?", cycleID).Order("date ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("Tracking: %w", err)
	}
	return rows, nil
}

// Stats aggregates cycles across all users.
type Stats struct {
	TotalCycles int64   `json:"total_cycles"`
	OpenCycles  int64   `json:"open_cycles"`
	TotalPnL    float64 `json:"total_pnl"`
}

// GetStats returns installation-wide cycle statistics. TotalPnL sums the
// per-unit profit_loss of closed cycles.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	db := r.db.WithContext(ctx).Model(&models.TradeCycle{})

	if err := db.Count(&stats.TotalCycles).Error; err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.TradeCycle{}).
		Where("status = ?", cycle.StatusOpen).
		Count(&stats.OpenCycles).Error; err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.TradeCycle{}).
		Where("status = ?", cycle.StatusClosed).
		Select("COALESCE(SUM(profit_loss), 0)").
		Scan(&stats.TotalPnL).Error; err != nil {
		return nil, fmt.Errorf("GetStats: %w", err)
	}
	return &stats, nil
}

func toRow(c cycle.TradeCycle) models.TradeCycle {
	row := models.TradeCycle{
		ID:                   c.ID,
		UserID:               c.UserID,
		Symbol:               c.Symbol,
		CycleNumber:          c.CycleNumber,
		Status:               string(c.Status),
		BuyDate:              c.BuyDate.Time,
		BuyPrice:             c.BuyPrice,
		BuyRSI:               c.BuyRSI,
		HighestPriceAfterBuy: c.HighestPriceAfterBuy,
		TSLTriggerPrice:      c.TSLTriggerPrice,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
	}
	if row.Status == "" {
		row.Status = string(cycle.StatusOpen)
	}
	if e := c.Exit; e != nil {
		sellDate := e.SellDate.Time
		trigger := string(e.CloseTrigger)
		row.SellDate = &sellDate
		row.SellPrice = &e.SellPrice
		row.SellRSI = &e.SellRSI
		row.ProfitLoss = &e.ProfitLoss
		row.ProfitLossPercent = &e.ProfitLossPercent
		row.SellReason = &e.SellReason
		row.CloseTrigger = &trigger
	}
	return row
}

func toDomain(row models.TradeCycle) cycle.TradeCycle {
	c := cycle.TradeCycle{
		ID:                   row.ID,
		UserID:               row.UserID,
		Symbol:               row.Symbol,
		CycleNumber:          row.CycleNumber,
		Status:               cycle.Status(row.Status),
		BuyDate:              market.NewDate(row.BuyDate),
		BuyPrice:             row.BuyPrice,
		BuyRSI:               row.BuyRSI,
		HighestPriceAfterBuy: row.HighestPriceAfterBuy,
		TSLTriggerPrice:      row.TSLTriggerPrice,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if c.Status == cycle.StatusClosed {
		exit := &cycle.Exit{}
		if row.SellDate != nil {
			exit.SellDate = market.NewDate(*row.SellDate)
		}
		exit.SellPrice = deref(row.SellPrice)
		exit.SellRSI = deref(row.SellRSI)
		exit.ProfitLoss = deref(row.ProfitLoss)
		exit.ProfitLossPercent = deref(row.ProfitLossPercent)
		if row.SellReason != nil {
			exit.SellReason = *row.SellReason
		}
		if row.CloseTrigger != nil {
			exit.CloseTrigger = cycle.CloseTrigger(*row.CloseTrigger)
		}
		c.Exit = exit
	}
	return c
}

func toDomainSlice(rows []models.TradeCycle) []cycle.TradeCycle {
	out := make([]cycle.TradeCycle, len(rows))
	for i, row := range rows {
		out[i] = toDomain(row)
	}
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
