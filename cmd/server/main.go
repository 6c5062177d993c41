package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"tradinghub/internal/app/router"
	marketdataadapters "tradinghub/internal/feature/marketdata/adapters"
	"tradinghub/internal/feature/marketdata/adapters/ibkr"
	marketdatahandler "tradinghub/internal/feature/marketdata/transport/handler"
	marketdatausecase "tradinghub/internal/feature/marketdata/usecase"
	symbollistadapters "tradinghub/internal/feature/symbollist/adapters"
	symbollisthandler "tradinghub/internal/feature/symbollist/transport/handler"
	symbollistusecase "tradinghub/internal/feature/symbollist/usecase"
	"tradinghub/internal/platform/cache"
	platformdb "tradinghub/internal/platform/db"
	"tradinghub/internal/platform/ibgateway"
	platformredis "tradinghub/internal/platform/redis"
	"tradinghub/internal/platform/scheduler"
	"tradinghub/internal/shared/ratelimiter"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// db
	db := platformdb.OpenDB()

	// Redis
	var rdb *redisv9.Client
	if tmp, err := platformredis.NewRedisClient(); err != nil {
		logger.Warn("redis unavailable, running without cache", "error", err)
		rdb = nil
	} else {
		rdb = tmp
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}()
	}

	// Gateway
	ibCfg := ibgateway.LoadConfig()
	gw := ibgateway.NewGateway(ibCfg, logger)
	market := ibkr.NewMarket(gw, ibCfg, logger)

	// Repository. Cached reads roll over with the daily settlement bar.
	barRepo := marketdataadapters.NewBarRepository(db)
	cachedBarRepo := cache.NewCachingBarRepository(rdb, cache.TimeUntilNextMarketRollover, barRepo, "bars")
	symbolRepo := symbollistadapters.NewSymbolRepository(db)

	// Usecase
	limiter := ratelimiter.NewRateLimiter(6, time.Minute)
	acquisitionUC := marketdatausecase.NewAcquisitionUsecase(
		cachedBarRepo, market, limiter, nil, marketdatausecase.Options{}, logger)
	symbolUC := symbollistusecase.NewSymbolUsecase(symbolRepo)

	// Handler
	marketDataH := marketdatahandler.NewMarketDataHandler(acquisitionUC, market)
	symbolH := symbollisthandler.NewSymbolHandler(symbolUC)

	// Nightly refresh over the tracked list
	sched := scheduler.NewScheduler(symbolUC, acquisitionUC, logger)
	sched.Start()
	defer sched.Stop()

	r := router.NewRouter(marketDataH, symbolH)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	if err := r.Run(addr); err != nil {
		log.Fatal(err)
	}
}
