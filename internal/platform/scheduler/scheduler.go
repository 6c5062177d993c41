// Package scheduler runs the nightly data refresh over the tracked-symbol
// list.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron"

	"tradinghub/internal/feature/marketdata/usecase"
)

// SymbolLister supplies the symbols to refresh.
type SymbolLister interface {
	ListActiveCodes(ctx context.Context) ([]string, error)
}

// Refresher refetches recent daily bars for one symbol.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) usecase.RefreshResult
}

// Scheduler manages the nightly refresh job.
type Scheduler struct {
	cron      *gocron.Scheduler
	symbols   SymbolLister
	refresher Refresher
	at        string
	log       *slog.Logger
}

// NewScheduler creates a Scheduler refreshing daily at the configured wall
// clock time (UTC, "HH:MM"). REFRESH_AT overrides the default of 21:30,
// shortly after the US close.
func NewScheduler(symbols SymbolLister, refresher Refresher, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	at := os.Getenv("REFRESH_AT")
	if at == "" {
		at = "21:30"
	}
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		symbols:   symbols,
		refresher: refresher,
		at:        at,
		log:       log,
	}
}

// Start registers the nightly job and runs the scheduler in the background.
func (s *Scheduler) Start() {
	if _, err := s.cron.Every(1).Day().At(s.at).Do(s.refreshAll); err != nil {
		s.log.Error("failed to register refresh job", "error", err)
		return
	}
	s.cron.StartAsync()
	s.log.Info("nightly refresh scheduled", "at", s.at)
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// refreshAll refreshes every active tracked symbol in turn. Failures are
// logged and do not stop the sweep.
func (s *Scheduler) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	codes, err := s.symbols.ListActiveCodes(ctx)
	if err != nil {
		s.log.Error("nightly refresh: listing symbols failed", "error", err)
		return
	}

	s.log.Info("nightly refresh starting", "symbols", len(codes))
	for _, code := range codes {
		res := s.refresher.Refresh(ctx, code)
		if !res.Success {
			s.log.Warn("nightly refresh: symbol failed", "symbol", code, "message", res.Message)
			continue
		}
		s.log.Info("nightly refresh: symbol done", "symbol", code)
	}
}
