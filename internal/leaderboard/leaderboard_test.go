package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tagvorto/internal/game"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db
}

func seedDailyGame(t *testing.T, db *gorm.DB, date string) *models.DailyGame {
	t.Helper()
	start, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	dg := models.DailyGame{
		ID:          uuid.NewString(),
		Date:        date,
		SecretWord:  "PULSE",
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 1),
		Status:      models.GameStatusOpen,
	}
	require.NoError(t, db.Create(&dg).Error)
	return &dg
}

func seedUser(t *testing.T, db *gorm.DB, name, displayName string) *models.User {
	t.Helper()
	u := models.User{ID: uuid.NewString(), UserName: name, DisplayName: displayName}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func seedWinner(t *testing.T, db *gorm.DB, dg *models.DailyGame, userID string, guesses int, completion time.Duration) {
	t.Helper()
	end := dg.WindowStart.Add(completion)
	pg := models.PlayerGame{
		ID:           uuid.NewString(),
		UserID:       userID,
		DailyGameID:  dg.ID,
		StartTime:    dg.WindowStart,
		EndTime:      &end,
		Completed:    true,
		CompletionMs: completion.Milliseconds(),
		GuessCount:   guesses,
		Result:       models.GameResultWin,
	}
	require.NoError(t, db.Create(&pg).Error)
}

func TestRecalculateRanksByCompletionTime(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	fast := seedUser(t, db, "fast", "Fast Player")
	slow := seedUser(t, db, "slow", "")
	mid := seedUser(t, db, "mid", "Mid Player")
	seedWinner(t, db, dg, slow.ID, 3, 10*time.Minute)
	seedWinner(t, db, dg, fast.ID, 5, 2*time.Minute)
	seedWinner(t, db, dg, mid.ID, 2, 5*time.Minute)

	// Sessions that did not win never rank.
	loser := seedUser(t, db, "loser", "")
	end := dg.WindowStart.Add(time.Minute)
	require.NoError(t, db.Create(&models.PlayerGame{
		ID: uuid.NewString(), UserID: loser.ID, DailyGameID: dg.ID,
		StartTime: dg.WindowStart, EndTime: &end, Completed: true,
		CompletionMs: 60_000, GuessCount: 6, Result: models.GameResultFail,
	}).Error)
	running := seedUser(t, db, "running", "")
	require.NoError(t, db.Create(&models.PlayerGame{
		ID: uuid.NewString(), UserID: running.ID, DailyGameID: dg.ID,
		StartTime: dg.WindowStart, GuessCount: 2, Result: models.GameResultInProgress,
	}).Error)

	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	views, err := engine.GetLeaderboard(ctx, "2024-03-15", 0)
	require.NoError(t, err)
	require.Len(t, views, 3)

	// Fastest completion first, ranks dense from 1.
	assert.Equal(t, 1, views[0].Rank)
	assert.Equal(t, "fast", views[0].UserName)
	assert.Equal(t, "Fast Player", views[0].DisplayName)
	assert.Equal(t, 2, views[1].Rank)
	assert.Equal(t, "mid", views[1].UserName)
	assert.Equal(t, 3, views[2].Rank)
	assert.Equal(t, "slow", views[2].UserName)
	// Username stands in when no display name was set.
	assert.Equal(t, "slow", views[2].DisplayName)
}

func TestRecalculateBreaksTiesByGuessCount(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	many := seedUser(t, db, "many", "")
	few := seedUser(t, db, "few", "")
	seedWinner(t, db, dg, many.ID, 5, 3*time.Minute)
	seedWinner(t, db, dg, few.ID, 2, 3*time.Minute)

	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	views, err := engine.GetLeaderboard(ctx, "2024-03-15", 0)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "few", views[0].UserName)
	assert.Equal(t, "many", views[1].UserName)
}

func TestRecalculateOrdersFullTiesByUserID(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	// Identical completion time, guess count, and end time: the user id is
	// the final sort key, so every pass assigns the same ranks.
	users := make([]*models.User, 3)
	for i := range users {
		users[i] = seedUser(t, db, fmt.Sprintf("tied-%d", i), "")
		seedWinner(t, db, dg, users[i].ID, 3, 3*time.Minute)
	}

	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	var first []models.LeaderboardEntry
	require.NoError(t, db.Where("daily_game_id = ?", dg.ID).
		Order("rank asc").Find(&first).Error)
	require.Len(t, first, 3)
	assert.True(t, first[0].UserID < first[1].UserID)
	assert.True(t, first[1].UserID < first[2].UserID)

	// A second pass reproduces the exact permutation.
	require.NoError(t, engine.Recalculate(ctx, dg.ID))
	var second []models.LeaderboardEntry
	require.NoError(t, db.Where("daily_game_id = ?", dg.ID).
		Order("rank asc").Find(&second).Error)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].UserID, second[i].UserID, "rank %d", i+1)
		assert.Equal(t, first[i].Rank, second[i].Rank, "rank %d", i+1)
	}
}

func TestRecalculateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	u := seedUser(t, db, "solo", "")
	seedWinner(t, db, dg, u.ID, 3, 4*time.Minute)

	require.NoError(t, engine.Recalculate(ctx, dg.ID))
	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	var count int64
	require.NoError(t, db.Model(&models.LeaderboardEntry{}).
		Where("daily_game_id = ?", dg.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecalculateEmptyClearsBoard(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	u := seedUser(t, db, "solo", "")
	seedWinner(t, db, dg, u.ID, 3, 4*time.Minute)
	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	// The winner disappears (e.g. account wipe); the next pass must replace
	// the projection with an empty set, not keep stale rows.
	require.NoError(t, db.Where("daily_game_id = ?", dg.ID).
		Delete(&models.PlayerGame{}).Error)
	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	views, err := engine.GetLeaderboard(ctx, "2024-03-15", 0)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestGetLeaderboardValidation(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()

	_, err := engine.GetLeaderboard(ctx, "15-03-2024", 0)
	require.ErrorIs(t, err, game.ErrValidation)

	_, err = engine.GetLeaderboard(ctx, "2024-03-15", 0)
	require.ErrorIs(t, err, game.ErrNotFound)
}

func TestGetLeaderboardLimit(t *testing.T) {
	db := newTestDB(t)
	engine := NewEngine(db)
	ctx := context.Background()
	dg := seedDailyGame(t, db, "2024-03-15")

	for i := range 5 {
		u := seedUser(t, db, fmt.Sprintf("user-%d", i), "")
		seedWinner(t, db, dg, u.ID, 3, time.Duration(i+1)*time.Minute)
	}
	require.NoError(t, engine.Recalculate(ctx, dg.ID))

	views, err := engine.GetLeaderboard(ctx, "2024-03-15", 2)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 1, views[0].Rank)
	assert.Equal(t, 2, views[1].Rank)
}

func TestScore(t *testing.T) {
	// One guess, 30 seconds: six unused guesses worth 6000, minus 30.
	assert.Equal(t, 5970, Score(1, 30_000))
	// Six guesses, instant: one band left.
	assert.Equal(t, 1000, Score(6, 0))
	// Slow enough to exhaust the band: floored at zero.
	assert.Equal(t, 0, Score(6, 2_000_000))
}
