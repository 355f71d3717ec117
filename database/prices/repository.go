// Package prices writes imported price history. Reads go through
// market.SQLSource.
package prices

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "rsi-cycle-tracker/database/models_pkg"
	"rsi-cycle-tracker/market"
)

// Repository handles database operations for price history
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new prices repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes rows in batches, replacing any bar already stored for the
// same (symbol, date).
func (r *Repository) Upsert(ctx context.Context, rows []market.ImportRow, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	records := make([]models.PriceHistory, len(rows))
	for i, row := range rows {
		records[i] = models.PriceHistory{
			Symbol:     row.Symbol,
			Date:       row.Date.Time,
			OpenPrice:  row.Open,
			HighPrice:  row.High,
			LowPrice:   row.Low,
			ClosePrice: row.Close,
			Turnover:   row.Turnover,
		}
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open_price", "high_price", "low_price", "close_price", "turnover"}),
	}).CreateInBatches(&records, batchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("Upsert: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of stored bars.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.PriceHistory{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}
