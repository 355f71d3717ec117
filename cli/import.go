package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-cycle-tracker/app"
	"rsi-cycle-tracker/cache"
	"rsi-cycle-tracker/config"
	"rsi-cycle-tracker/database/prices"
	"rsi-cycle-tracker/market"
)

func importPricesCmd() *cobra.Command {
	var (
		dryRun    bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "import-prices <csv>",
		Short: "Load a Symbol,Date,Open,High,Low,Close,Turnover export into price_history",
		Long: `Load an exchange price export into the price_history table. Rows
already stored for the same symbol and date are replaced.

Example:
  rsi-tracker import-prices --dry-run prices.csv
  rsi-tracker import-prices --batch-size 1000 prices.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			rows, err := market.ParseCSV(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				return previewImport(cmd.Context(), out, rows)
			}

			cfg, db, log, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()
			defer log.Sync()

			if err := app.Migrate(db, log); err != nil {
				return err
			}
			n, err := prices.NewRepository(db.DB()).Upsert(cmd.Context(), rows, batchSize)
			if err != nil {
				return err
			}
			log.Info("📥 Price history imported", zap.String("file", args[0]), zap.Int64("rows", n))
			if err := invalidatePriceCache(cmd.Context(), cfg, rows, log); err != nil {
				log.Warn("⚠️ Failed to invalidate price cache", zap.Error(err))
			}
			fmt.Fprintf(out, "✅ Imported %d rows from %s\n", n, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and summarise the file without writing")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows per insert statement")
	return cmd
}

// invalidatePriceCache drops cached bars for the imported symbols so running
// servers see the new history before the cache TTL expires.
func invalidatePriceCache(ctx context.Context, cfg *config.Config, rows []market.ImportRow, log *zap.Logger) error {
	if !cfg.Redis.Enabled {
		return nil
	}
	redis := cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB, log)
	if redis == nil {
		return fmt.Errorf("redis unavailable at %s", cfg.Redis.Addr())
	}
	defer redis.Close()

	seen := make(map[string]bool)
	var symbols []string
	for _, r := range rows {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			symbols = append(symbols, r.Symbol)
		}
	}
	return cache.NewPriceCache(nil, redis, cfg.PriceSource.CacheTTL, log).Invalidate(ctx, symbols...)
}

// previewImport loads rows into memory and prints what an import would
// contain.
func previewImport(ctx context.Context, out io.Writer, rows []market.ImportRow) error {
	if ctx == nil {
		ctx = context.Background()
	}
	src := market.NewMemorySource()
	for _, r := range rows {
		src.Add(r.PriceBar)
	}
	symbols, err := src.Symbols(ctx)
	if err != nil {
		return err
	}
	latest, err := src.LatestSession(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d rows, %d symbols\n", len(rows), len(symbols))
	if len(latest) > 0 {
		fmt.Fprintf(out, "latest session: %s (%d symbols)\n", market.LatestDate(latest), len(latest))
	}
	for _, symbol := range symbols {
		bars, err := src.History(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %-10s %4d bars  %s → %s\n", symbol, len(bars), bars[0].Date, bars[len(bars)-1].Date)
	}
	return nil
}
