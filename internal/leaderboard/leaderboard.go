package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"tagvorto/internal/constants"
	"tagvorto/internal/game"
	"tagvorto/internal/metrics"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
)

// DefaultLimit caps leaderboard reads when the caller does not ask for one.
const DefaultLimit = 100

// Engine recomputes and serves the ranked leaderboard for a daily game. It
// owns the LeaderboardEntry projection; nothing else writes those rows.
type Engine struct {
	db *gorm.DB

	// gameLocks serializes recalculation per daily game. Different games
	// recalculate in parallel; the same game never races itself.
	gameLocks util.KeyedMutex
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Recalculate rebuilds the leaderboard projection for one daily game from
// the winning sessions. Idempotent: the whole entry set is replaced in a
// single transaction, so readers observe either the previous complete set or
// the new one, never a mix.
func (e *Engine) Recalculate(ctx context.Context, dailyGameID string) error {
	unlock := e.gameLocks.Lock(dailyGameID)
	defer unlock()

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var winners []models.PlayerGame
	err := e.db.WithContext(ctx).
		Where("daily_game_id = ? AND completed = ? AND result = ?", dailyGameID, true, models.GameResultWin).
		Order("completion_ms asc").
		Order("guess_count asc").
		Order("end_time asc").
		// Tie-break on user id last so a full tie still orders the same way
		// on every recalculation pass.
		Order("user_id asc").
		Find(&winners).Error
	if err != nil {
		return fmt.Errorf("load winning sessions: %w", err)
	}

	entries := lo.Map(winners, func(pg models.PlayerGame, i int) models.LeaderboardEntry {
		completedAt := pg.StartTime
		if pg.EndTime != nil {
			completedAt = *pg.EndTime
		}
		return models.LeaderboardEntry{
			ID:          uuid.NewString(),
			DailyGameID: dailyGameID,
			UserID:      pg.UserID,
			Rank:        i + 1,
			Score:       Score(pg.GuessCount, pg.CompletionMs),
			GuessCount:  pg.GuessCount,
			CompletedAt: completedAt,
		}
	})

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("daily_game_id = ?", dailyGameID).
			Delete(&models.LeaderboardEntry{}).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.CreateInBatches(entries, 500).Error
	})
	if err != nil {
		metrics.LeaderboardRecalcFailures.Inc()
		return fmt.Errorf("replace leaderboard entries: %w", err)
	}

	metrics.LeaderboardRecalcs.Inc()
	return nil
}

// GetLeaderboard returns the top entries for a date ordered by rank. An
// empty slice, not an error, when nobody has won yet.
func (e *Engine) GetLeaderboard(ctx context.Context, dateStr string, limit int) ([]models.LeaderboardEntryView, error) {
	if _, err := time.Parse(constants.DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("%w: date must be yyyy-MM-dd", game.ErrValidation)
	}
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var dg models.DailyGame
	if err := e.db.WithContext(ctx).First(&dg, "date = ?", dateStr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no daily game for %s", game.ErrNotFound, dateStr)
		}
		return nil, fmt.Errorf("load daily game %s: %w", dateStr, err)
	}

	var entries []models.LeaderboardEntry
	err := e.db.WithContext(ctx).
		Where("daily_game_id = ?", dg.ID).
		Order("rank asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load leaderboard entries: %w", err)
	}

	// Identifier lookups instead of ORM navigation: one IN query for the
	// ranked users, joined in memory.
	userIDs := lo.Map(entries, func(le models.LeaderboardEntry, _ int) string { return le.UserID })
	var users []models.User
	if len(userIDs) > 0 {
		if err := e.db.WithContext(ctx).Find(&users, "id IN ?", userIDs).Error; err != nil {
			return nil, fmt.Errorf("load ranked users: %w", err)
		}
	}
	byID := lo.Associate(users, func(u models.User) (string, models.User) { return u.ID, u })

	views := lo.Map(entries, func(le models.LeaderboardEntry, _ int) models.LeaderboardEntryView {
		u := byID[le.UserID]
		return models.LeaderboardEntryView{
			Rank:        le.Rank,
			UserName:    u.UserName,
			DisplayName: displayName(u),
			Score:       le.Score,
			Guesses:     le.GuessCount,
			CompletedAt: le.CompletedAt,
		}
	})
	return views, nil
}

// Score derives a display score from guess count and completion time: each
// unused guess is worth 1000, minus one point per second on the clock,
// floored at zero. Rank stays the authoritative ordering.
func Score(guessCount int, completionMs int64) int {
	score := (constants.MaxGuesses+1-guessCount)*1000 - int(completionMs/1000)
	if score < 0 {
		return 0
	}
	return score
}

func displayName(u models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.UserName
}
