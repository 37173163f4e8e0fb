package scheduler

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"tagvorto/internal/constants"
	"tagvorto/internal/game"
	"tagvorto/internal/hub"
	"tagvorto/internal/leaderboard"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
)

const (
	retryAttempts = 3
	retryDelay    = 2 * time.Second
)

// Scheduler owns the periodic background work: keeping today's and
// tomorrow's daily games seeded, and recomputing and publishing the active
// leaderboards. Loop failures are logged and retried on the next pass; a
// failed tick never aborts the schedule. Cancellation is cooperative and
// only observed between iterations.
type Scheduler struct {
	db       *gorm.DB
	games    *game.Service
	boards   *leaderboard.Engine
	hub      *hub.Hub
	interval time.Duration
	now      func() time.Time
}

func New(db *gorm.DB, games *game.Service, boards *leaderboard.Engine, h *hub.Hub, interval time.Duration) *Scheduler {
	return &Scheduler{
		db:       db,
		games:    games,
		boards:   boards,
		hub:      h,
		interval: interval,
		now:      time.Now,
	}
}

// Run starts both loops and blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runSeedLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runRecalcLoop(ctx)
	}()
	wg.Wait()
}

// runSeedLoop ensures the daily games exist at startup and after every UTC
// midnight, so joining never races the day rollover.
func (s *Scheduler) runSeedLoop(ctx context.Context) {
	util.LogInfo("Daily game seed loop starting")
	s.EnsureUpcomingGames(ctx)

	for {
		now := s.now().UTC()
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		timer := time.NewTimer(nextMidnight.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			util.LogInfo("Daily game seed loop stopping")
			return
		case <-timer.C:
			s.EnsureUpcomingGames(ctx)
		}
	}
}

// EnsureUpcomingGames idempotently seeds today's and tomorrow's games.
func (s *Scheduler) EnsureUpcomingGames(ctx context.Context) {
	now := s.now().UTC()
	for _, date := range []time.Time{now, now.AddDate(0, 0, 1)} {
		date := date
		err := withRetry(ctx, func() error {
			_, err := s.games.EnsureDailyGame(ctx, date)
			return err
		})
		if err != nil {
			util.LogError("Failed to seed daily game for %s: %v", date.Format(constants.DateLayout), err)
		}
	}
}

func (s *Scheduler) runRecalcLoop(ctx context.Context) {
	util.LogInfo("Leaderboard recalculation loop starting (every %v)", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			util.LogInfo("Leaderboard recalculation loop stopping")
			return
		case <-ticker.C:
			s.RecalculateActive(ctx)
		}
	}
}

// RecalculateActive recomputes and publishes the leaderboard for every
// daily game whose date is today. Per-game failures are logged and skipped.
func (s *Scheduler) RecalculateActive(ctx context.Context) {
	today := s.now().UTC().Format(constants.DateLayout)

	var active []models.DailyGame
	err := withRetry(ctx, func() error {
		qctx, cancel := store.WithTimeout(ctx)
		defer cancel()
		return s.db.WithContext(qctx).Find(&active, "date = ?", today).Error
	})
	if err != nil {
		util.LogError("Failed to list active daily games: %v", err)
		return
	}

	for _, dg := range active {
		if err := s.boards.Recalculate(ctx, dg.ID); err != nil {
			util.LogError("Leaderboard recalculation failed for %s: %v", dg.Date, err)
			continue
		}

		entries, err := s.boards.GetLeaderboard(ctx, dg.Date, leaderboard.DefaultLimit)
		if err != nil {
			util.LogError("Failed to load fresh leaderboard for %s: %v", dg.Date, err)
			continue
		}

		if err := s.hub.PublishLeaderboard(ctx, dg.Date, entries); err != nil {
			util.LogError("Failed to publish leaderboard for %s: %v", dg.Date, err)
		}
	}
}

// withRetry retries transient store failures a bounded number of times,
// backing off between attempts. It never retries past cancellation.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryDelay):
		}
	}
	return err
}
