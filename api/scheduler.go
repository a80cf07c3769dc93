/*
scheduler.go - Automated bill refresh scheduler

PURPOSE:
  Periodically refreshes every drawn credit so stored bills, late fees and
  delinquency states follow the calendar even when nobody pays or draws.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick lists GoodStanding and Delayed credits and refreshes them
    with at most Concurrency running at once
  - Each credit is refreshed by exactly one goroutine per tick, and
    Manager serializes it against concurrent API calls
  - One failing credit is logged and does not stop the others

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Concurrency:   Parallel refreshes per tick (default: 8)
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRefreshScheduler(manager, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RefreshCredit endpoint (manual refresh)
  - credit/manager.go: RefreshCredit
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/credit-engine/credit"
	"golang.org/x/sync/errgroup"
)

// RefreshScheduler refreshes active credits on a timer.
type RefreshScheduler struct {
	Manager       *credit.Manager
	Logger        *slog.Logger
	CheckInterval time.Duration
	Concurrency   int
	Enabled       bool

	// Now is the instant each tick refreshes to.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RefreshSummary counts the outcome of one tick.
type RefreshSummary struct {
	Checked int
	Changed int
	Late    int
	Failed  int
}

// NewRefreshScheduler creates a new scheduler.
func NewRefreshScheduler(m *credit.Manager, logger *slog.Logger) *RefreshScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshScheduler{
		Manager:       m,
		Logger:        logger.With("component", "scheduler"),
		CheckInterval: time.Hour,
		Concurrency:   8,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.Logger.Info("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info("scheduler started", "interval", rs.CheckInterval, "concurrency", rs.Concurrency)
}

// Stop stops the scheduler and waits for a running tick to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info("scheduler stopped")
	}
}

func (rs *RefreshScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	rs.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow refreshes every active credit once.
func (rs *RefreshScheduler) RunNow(ctx context.Context) (RefreshSummary, error) {
	now := rs.Now()

	credits, err := rs.Manager.Store().ListCredits(ctx, credit.StateGoodStanding, credit.StateDelayed)
	if err != nil {
		rs.Logger.ErrorContext(ctx, "failed to list credits", "error", err)
		return RefreshSummary{}, err
	}

	var changed, late, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(rs.Concurrency, 1))

	for _, c := range credits {
		hash, before := c.Hash, c.Record
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refreshed, isLate, err := rs.Manager.RefreshCredit(gctx, hash, now)
			if err != nil {
				failed.Add(1)
				rs.Logger.ErrorContext(gctx, "refresh failed", "credit", hash.Short(), "error", err)
				return nil
			}
			if !refreshed.Record.Equal(before) {
				changed.Add(1)
			}
			if isLate {
				late.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	summary := RefreshSummary{
		Checked: len(credits),
		Changed: int(changed.Load()),
		Late:    int(late.Load()),
		Failed:  int(failed.Load()),
	}
	if summary.Changed > 0 || summary.Failed > 0 {
		rs.Logger.InfoContext(ctx, "refresh completed",
			"checked", summary.Checked, "changed", summary.Changed,
			"late", summary.Late, "failed", summary.Failed)
	}
	return summary, err
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RefreshScheduler) NextRunTime() time.Time {
	return rs.Now().Add(rs.CheckInterval)
}
