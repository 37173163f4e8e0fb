package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tagvorto/internal/constants"
	"tagvorto/internal/game"
	"tagvorto/internal/hub"
	"tagvorto/internal/leaderboard"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/words"
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

func newTestScheduler(t *testing.T) (*Scheduler, *gorm.DB, *redis.Client) {
	t.Helper()
	db := newTestDB(t)

	corpus, err := words.New([]words.WordEntry{{Word: "PULSE"}}, nil)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	games := game.NewService(db, corpus)
	boards := leaderboard.NewEngine(db)
	s := New(db, games, boards, hub.New(rdb), time.Minute)
	return s, db, rdb
}

func TestEnsureUpcomingGamesSeedsTodayAndTomorrow(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	ctx := context.Background()

	s.EnsureUpcomingGames(ctx)

	now := time.Now().UTC()
	today := now.Format(constants.DateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(constants.DateLayout)

	var games []models.DailyGame
	require.NoError(t, db.Order("date asc").Find(&games).Error)
	require.Len(t, games, 2)
	assert.Equal(t, today, games[0].Date)
	assert.Equal(t, tomorrow, games[1].Date)

	// A second pass changes nothing.
	s.EnsureUpcomingGames(ctx)
	var count int64
	require.NoError(t, db.Model(&models.DailyGame{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRecalculateActivePublishes(t *testing.T) {
	s, db, rdb := newTestScheduler(t)
	ctx := context.Background()

	s.EnsureUpcomingGames(ctx)

	today := time.Now().UTC().Format(constants.DateLayout)
	var dg models.DailyGame
	require.NoError(t, db.First(&dg, "date = ?", today).Error)

	winner := models.User{ID: uuid.NewString(), UserName: "alice"}
	require.NoError(t, db.Create(&winner).Error)
	end := dg.WindowStart.Add(3 * time.Minute)
	require.NoError(t, db.Create(&models.PlayerGame{
		ID: uuid.NewString(), UserID: winner.ID, DailyGameID: dg.ID,
		StartTime: dg.WindowStart, EndTime: &end, Completed: true,
		CompletionMs: 180_000, GuessCount: 2, Result: models.GameResultWin,
	}).Error)

	sub := rdb.Subscribe(ctx, constants.ChannelLeaderboard)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	s.RecalculateActive(ctx)

	var entries []models.LeaderboardEntry
	require.NoError(t, db.Find(&entries, "daily_game_id = ?", dg.ID).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, winner.ID, entries[0].UserID)

	select {
	case msg := <-sub.Channel():
		var evt hub.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &evt))
		assert.Equal(t, constants.EventLeaderboardUpdated, evt.Event)
		assert.Equal(t, today, evt.Date)
	case <-time.After(2 * time.Second):
		t.Fatal("no leaderboard event published")
	}
}

func TestRecalculateActiveBoundsStoreQueries(t *testing.T) {
	s, db, _ := newTestScheduler(t)

	// Every query issued by the active pass must carry a deadline so a slow
	// store cannot wedge the recalculation loop.
	unbounded := 0
	err := db.Callback().Query().Before("gorm:query").
		Register("assert_deadline", func(tx *gorm.DB) {
			if _, ok := tx.Statement.Context.Deadline(); !ok {
				unbounded++
			}
		})
	require.NoError(t, err)

	s.EnsureUpcomingGames(context.Background())
	s.RecalculateActive(context.Background())
	assert.Zero(t, unbounded, "store query issued without a deadline")
}

func TestRecalculateActiveSkipsOtherDates(t *testing.T) {
	s, db, _ := newTestScheduler(t)
	ctx := context.Background()

	// A stale game from last week never recalculates on the active pass.
	start := time.Now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour)
	old := models.DailyGame{
		ID:          uuid.NewString(),
		Date:        start.Format(constants.DateLayout),
		SecretWord:  "PULSE",
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 1),
		Status:      models.GameStatusOpen,
	}
	require.NoError(t, db.Create(&old).Error)

	winner := models.User{ID: uuid.NewString(), UserName: "alice"}
	require.NoError(t, db.Create(&winner).Error)
	end := old.WindowStart.Add(time.Minute)
	require.NoError(t, db.Create(&models.PlayerGame{
		ID: uuid.NewString(), UserID: winner.ID, DailyGameID: old.ID,
		StartTime: old.WindowStart, EndTime: &end, Completed: true,
		CompletionMs: 60_000, GuessCount: 1, Result: models.GameResultWin,
	}).Error)

	s.RecalculateActive(ctx)

	var count int64
	require.NoError(t, db.Model(&models.LeaderboardEntry{}).
		Where("daily_game_id = ?", old.ID).Count(&count).Error)
	assert.Zero(t, count)
}
