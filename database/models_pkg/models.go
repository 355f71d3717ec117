package models

import "time"

// User is an account of the dashboard. Deactivated users keep their cycles
// but can no longer authenticate.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	IsAdmin      bool       `gorm:"not null;default:false" json:"is_admin"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// TradeCycle is the row form of one buy-to-sell round trip.
//
// Key Fields:
//   - CycleNumber: 1-based sequence per (user, symbol), closed cycles included
//   - Status: OPEN or CLOSED; at most one OPEN row per (user, symbol), enforced
//     by the partial unique index idx_trade_cycles_one_open
//   - HighestPriceAfterBuy / TSLTriggerPrice: trailing stop state, only ever
//     raised while OPEN
//   - Sell*: NULL while OPEN
type TradeCycle struct {
	ID                   int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID               int64      `gorm:"not null;uniqueIndex:idx_trade_cycles_number,priority:1;index:idx_trade_cycles_user_status,priority:1" json:"user_id"`
	Symbol               string     `gorm:"size:20;not null;uniqueIndex:idx_trade_cycles_number,priority:2" json:"symbol"`
	CycleNumber          int        `gorm:"not null;uniqueIndex:idx_trade_cycles_number,priority:3" json:"cycle_number"`
	Status               string     `gorm:"size:10;not null;index:idx_trade_cycles_user_status,priority:2" json:"status"`
	BuyDate              time.Time  `gorm:"type:date;not null" json:"buy_date"`
	BuyPrice             float64    `gorm:"type:decimal(15,2);not null" json:"buy_price"`
	BuyRSI               float64    `gorm:"type:decimal(8,4)" json:"buy_rsi"`
	HighestPriceAfterBuy float64    `gorm:"type:decimal(15,2);not null" json:"highest_price_after_buy"`
	TSLTriggerPrice      float64    `gorm:"column:tsl_trigger_price;type:decimal(15,2);not null" json:"tsl_trigger_price"`
	SellDate             *time.Time `gorm:"type:date" json:"sell_date,omitempty"`
	SellPrice            *float64   `gorm:"type:decimal(15,2)" json:"sell_price,omitempty"`
	SellRSI              *float64   `gorm:"type:decimal(8,4)" json:"sell_rsi,omitempty"`
	ProfitLoss           *float64   `gorm:"type:decimal(15,2)" json:"profit_loss,omitempty"`
	ProfitLossPercent    *float64   `gorm:"type:decimal(10,2)" json:"profit_loss_percent,omitempty"`
	SellReason           *string    `gorm:"type:text" json:"sell_reason,omitempty"`
	CloseTrigger         *string    `gorm:"size:30" json:"close_trigger,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TradeCycle
func (TradeCycle) TableName() string {
	return "trade_cycles"
}

// PriceTracking is the audit trail of an open cycle's trailing stop, one row
// per observed bar date.
type PriceTracking struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleID    int64     `gorm:"not null;uniqueIndex:idx_price_tracking_cycle_date,priority:1" json:"cycle_id"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:idx_price_tracking_cycle_date,priority:2" json:"date"`
	ClosePrice float64   `gorm:"type:decimal(15,2);not null" json:"close_price"`
	IsNewHigh  bool      `gorm:"not null;default:false" json:"is_new_high"`
	TSLPrice   float64   `gorm:"type:decimal(15,2);not null" json:"tsl_price"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for PriceTracking
func (PriceTracking) TableName() string {
	return "price_tracking"
}

// GlobalSetting is an installation-wide default, stored as text.
type GlobalSetting struct {
	Key         string    `gorm:"primaryKey;size:50" json:"key"`
	Value       string    `gorm:"size:255;not null" json:"value"`
	Description string    `gorm:"type:text" json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for GlobalSetting
func (GlobalSetting) TableName() string {
	return "global_settings"
}

// UserSetting overrides a global setting for one user.
type UserSetting struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_user_settings_key,priority:1" json:"user_id"`
	Key       string    `gorm:"size:50;not null;uniqueIndex:idx_user_settings_key,priority:2" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserSetting
func (UserSetting) TableName() string {
	return "user_settings"
}

// PriceHistory is one daily bar written by the ingestion pipeline or the
// import-prices command. The engine reads it through market.SQLSource.
type PriceHistory struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol     string    `gorm:"size:20;not null;uniqueIndex:idx_price_history_symbol_date,priority:1" json:"symbol"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:idx_price_history_symbol_date,priority:2;index" json:"date"`
	OpenPrice  float64   `gorm:"type:decimal(15,2)" json:"open_price"`
	HighPrice  float64   `gorm:"type:decimal(15,2)" json:"high_price"`
	LowPrice   float64   `gorm:"type:decimal(15,2)" json:"low_price"`
	ClosePrice float64   `gorm:"type:decimal(15,2);not null" json:"close_price"`
	Turnover   float64   `gorm:"type:decimal(20,2)" json:"turnover"`
}

// TableName specifies the table name for PriceHistory
func (PriceHistory) TableName() string {
	return "price_history"
}
