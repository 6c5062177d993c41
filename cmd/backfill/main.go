// Command backfill loads historical daily bars for tracked symbols, or for
// symbols named on the command line.
//
//	backfill [-start 2015-01-01] [-end 2024-12-31] [AAPL VIX ...]
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	marketdataadapters "tradinghub/internal/feature/marketdata/adapters"
	"tradinghub/internal/feature/marketdata/adapters/ibkr"
	"tradinghub/internal/feature/marketdata/domain/entity"
	marketdatausecase "tradinghub/internal/feature/marketdata/usecase"
	symbollistadapters "tradinghub/internal/feature/symbollist/adapters"
	platformdb "tradinghub/internal/platform/db"
	"tradinghub/internal/platform/ibgateway"
	"tradinghub/internal/shared/ratelimiter"
)

func main() {
	startFlag := flag.String("start", "", "range start (YYYY-MM-DD), default 10 years back")
	endFlag := flag.String("end", "", "range end (YYYY-MM-DD), default yesterday")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	end := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	start := end.AddDate(-10, 0, 0)
	var err error
	if *endFlag != "" {
		if end, err = time.Parse("2006-01-02", *endFlag); err != nil {
			log.Fatal("invalid -end:", err)
		}
	}
	if *startFlag != "" {
		if start, err = time.Parse("2006-01-02", *startFlag); err != nil {
			log.Fatal("invalid -start:", err)
		}
	}

	db := platformdb.OpenDB()

	ibCfg := ibgateway.LoadConfig()
	gw := ibgateway.NewGateway(ibCfg, logger)
	market := ibkr.NewMarket(gw, ibCfg, logger)

	barRepo := marketdataadapters.NewBarRepository(db)
	limiter := ratelimiter.NewRateLimiter(6, time.Minute)
	uc := marketdatausecase.NewAcquisitionUsecase(
		barRepo, market, limiter, nil, marketdatausecase.Options{}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	symbols := flag.Args()
	if len(symbols) == 0 {
		symbolRepo := symbollistadapters.NewSymbolRepository(db)
		if symbols, err = symbolRepo.ListActiveCodes(ctx); err != nil {
			log.Fatal("failed to load symbols:", err)
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols to backfill")
	}

	failed := 0
	for _, sym := range symbols {
		key := entity.InstrumentKey{Symbol: sym, Interval: entity.IntervalDaily}
		bars, err := uc.GetRange(ctx, key, start, end)
		if err != nil {
			logger.Error("backfill failed", "symbol", sym, "error", err)
			failed++
			continue
		}
		logger.Info("backfill done", "symbol", sym, "bars", len(bars))
	}

	if failed > 0 {
		log.Fatalf("backfill finished with %d failed symbol(s)", failed)
	}
	log.Println("backfill ok")
}
