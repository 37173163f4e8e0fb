package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"tagvorto/internal/constants"
	"tagvorto/internal/metrics"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
	"tagvorto/internal/words"
)

// Service drives the daily-game lifecycle: seeding the puzzle for a date,
// joining, guess submission, and status reads. It holds no game state of its
// own; the store is the single source of truth.
type Service struct {
	db     *gorm.DB
	corpus *words.Corpus

	// sessionLocks serializes guess submissions per (user, daily game), so a
	// double-clicked submit cannot append twice or transition twice.
	sessionLocks util.KeyedMutex

	now func() time.Time
}

func NewService(db *gorm.DB, corpus *words.Corpus) *Service {
	return &Service{db: db, corpus: corpus, now: time.Now}
}

// EnsureDailyGame creates the puzzle row for the given date if none exists
// yet and returns it. Safe under concurrent callers: the unique index on the
// date column resolves the race, and the loser re-reads the winner's row.
func (s *Service) EnsureDailyGame(ctx context.Context, date time.Time) (*models.DailyGame, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	d := date.UTC()
	dateStr := d.Format(constants.DateLayout)

	var existing models.DailyGame
	err := s.db.WithContext(ctx).First(&existing, "date = ?", dateStr).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load daily game %s: %w", dateStr, err)
	}

	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	dg := models.DailyGame{
		ID:          uuid.NewString(),
		Date:        dateStr,
		SecretWord:  s.corpus.WordForDate(d),
		WindowStart: start,
		WindowEnd:   start.AddDate(0, 0, 1),
		Status:      models.GameStatusOpen,
	}

	if err := s.db.WithContext(ctx).Create(&dg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another caller created it between our read and write.
			if err := s.db.WithContext(ctx).First(&existing, "date = ?", dateStr).Error; err != nil {
				return nil, fmt.Errorf("reload daily game %s: %w", dateStr, err)
			}
			return &existing, nil
		}
		return nil, fmt.Errorf("create daily game %s: %w", dateStr, err)
	}

	util.LogInfo("Seeded daily game %s for %s", dg.ID, dateStr)
	return &dg, nil
}

// GetDailyGameByDate resolves a yyyy-MM-dd date string to its puzzle.
func (s *Service) GetDailyGameByDate(ctx context.Context, dateStr string) (*models.DailyGameView, error) {
	if _, err := time.Parse(constants.DateLayout, dateStr); err != nil {
		return nil, fmt.Errorf("%w: date must be yyyy-MM-dd", ErrValidation)
	}

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var dg models.DailyGame
	if err := s.db.WithContext(ctx).First(&dg, "date = ?", dateStr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no daily game for %s", ErrNotFound, dateStr)
		}
		return nil, fmt.Errorf("load daily game %s: %w", dateStr, err)
	}

	view := dailyGameView(&dg)
	return &view, nil
}

// GetDailyGame resolves a daily game id to its public view.
func (s *Service) GetDailyGame(ctx context.Context, dailyGameID string) (*models.DailyGameView, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	dg, err := s.loadDailyGame(ctx, dailyGameID)
	if err != nil {
		return nil, err
	}
	view := dailyGameView(dg)
	return &view, nil
}

// Join creates the player's session for a daily game. Exactly one session
// per (user, daily game) may ever exist: a second join is a hard conflict,
// enforced by the store's composite unique index, never a silent no-op.
func (s *Service) Join(ctx context.Context, userID, dailyGameID string) (*models.PlayerGameView, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	dg, err := s.loadDailyGame(ctx, dailyGameID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !now.Before(dg.WindowEnd) {
		return nil, fmt.Errorf("%w: daily game window has closed", ErrPrecondition)
	}

	pg := models.PlayerGame{
		ID:          uuid.NewString(),
		UserID:      userID,
		DailyGameID: dailyGameID,
		StartTime:   now,
		Result:      models.GameResultInProgress,
	}

	if err := s.db.WithContext(ctx).Create(&pg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: user already joined this daily game", ErrConflict)
		}
		return nil, fmt.Errorf("create player game: %w", err)
	}

	util.LogInfo("User %s joined daily game %s", userID, dg.Date)
	view := s.playerGameView(&pg, dg, nil)
	return &view, nil
}

// SubmitGuess evaluates one guess for the caller's session and advances the
// state machine: all-correct feedback wins, the sixth non-winning guess
// fails, anything else stays in progress.
func (s *Service) SubmitGuess(ctx context.Context, userID, dailyGameID, word string) (*models.GuessOutcome, error) {
	word = strings.ToUpper(strings.TrimSpace(word))
	if len(word) != constants.WordLength {
		return nil, fmt.Errorf("%w: guess must be %d letters", ErrValidation, constants.WordLength)
	}
	if !s.corpus.IsValidWord(word) {
		return nil, fmt.Errorf("%w: word not in accepted list", ErrValidation)
	}

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	dg, err := s.loadDailyGame(ctx, dailyGameID)
	if err != nil {
		return nil, err
	}

	unlock := s.sessionLocks.Lock(userID + "|" + dailyGameID)
	defer unlock()

	pg, err := s.loadSession(ctx, userID, dailyGameID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveExpired(ctx, pg, dg); err != nil {
		return nil, err
	}
	if pg.Completed {
		return nil, fmt.Errorf("%w: game already completed", ErrPrecondition)
	}
	if pg.GuessCount >= constants.MaxGuesses {
		// Unreachable while the transition rule holds: the sixth guess
		// always completes the session.
		return nil, fmt.Errorf("%w: no guesses remaining", ErrPrecondition)
	}

	feedback, err := Evaluate(word, dg.SecretWord)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	guess := models.Guess{
		ID:           uuid.NewString(),
		PlayerGameID: pg.ID,
		Word:         word,
		Feedback:     feedback,
		SubmittedAt:  now,
	}

	pg.GuessCount++
	won := IsWinning(feedback)
	lost := !won && pg.GuessCount >= constants.MaxGuesses
	if won || lost {
		pg.Completed = true
		end := now
		pg.EndTime = &end
		pg.CompletionMs = end.Sub(pg.StartTime).Milliseconds()
		pg.Result = lo.Ternary(won, models.GameResultWin, models.GameResultFail)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&guess).Error; err != nil {
			return err
		}
		return tx.Save(pg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("record guess: %w", err)
	}

	metrics.GuessesSubmitted.Inc()
	switch {
	case won:
		metrics.GamesWon.Inc()
		util.LogInfo("User %s won daily game %s in %d guesses", userID, dg.Date, pg.GuessCount)
	case lost:
		metrics.GamesFailed.Inc()
		util.LogInfo("User %s failed daily game %s", userID, dg.Date)
	}

	return &models.GuessOutcome{
		GuessWord:        word,
		Feedback:         feedback,
		Result:           pg.Result,
		RemainingSeconds: remainingSeconds(dg.WindowEnd, now),
		IsComplete:       pg.Completed,
		Hint:             s.hintFor(pg, dg),
	}, nil
}

// GetStatus returns a read-only projection of the caller's session,
// including the ordered guess history.
func (s *Service) GetStatus(ctx context.Context, userID, dailyGameID string) (*models.PlayerGameView, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	dg, err := s.loadDailyGame(ctx, dailyGameID)
	if err != nil {
		return nil, err
	}

	unlock := s.sessionLocks.Lock(userID + "|" + dailyGameID)
	defer unlock()

	pg, err := s.loadSession(ctx, userID, dailyGameID)
	if err != nil {
		if errors.Is(err, ErrPrecondition) {
			return nil, fmt.Errorf("%w: no session for this daily game", ErrNotFound)
		}
		return nil, err
	}
	if err := s.resolveExpired(ctx, pg, dg); err != nil {
		return nil, err
	}

	var guesses []models.Guess
	err = s.db.WithContext(ctx).
		Where("player_game_id = ?", pg.ID).
		Order("submitted_at asc").
		Find(&guesses).Error
	if err != nil {
		return nil, fmt.Errorf("load guesses: %w", err)
	}

	view := s.playerGameView(pg, dg, guesses)
	return &view, nil
}

func (s *Service) loadDailyGame(ctx context.Context, dailyGameID string) (*models.DailyGame, error) {
	var dg models.DailyGame
	if err := s.db.WithContext(ctx).First(&dg, "id = ?", dailyGameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown daily game", ErrNotFound)
		}
		return nil, fmt.Errorf("load daily game: %w", err)
	}
	return &dg, nil
}

func (s *Service) loadSession(ctx context.Context, userID, dailyGameID string) (*models.PlayerGame, error) {
	var pg models.PlayerGame
	err := s.db.WithContext(ctx).
		First(&pg, "user_id = ? AND daily_game_id = ?", userID, dailyGameID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user has not joined this daily game", ErrPrecondition)
		}
		return nil, fmt.Errorf("load player game: %w", err)
	}
	return &pg, nil
}

// resolveExpired lazily fails a session still in progress past the window
// end. An overrun session is never left open; the next read settles it.
func (s *Service) resolveExpired(ctx context.Context, pg *models.PlayerGame, dg *models.DailyGame) error {
	if pg.Completed || s.now().UTC().Before(dg.WindowEnd) {
		return nil
	}

	end := dg.WindowEnd
	pg.Completed = true
	pg.EndTime = &end
	pg.CompletionMs = end.Sub(pg.StartTime).Milliseconds()
	pg.Result = models.GameResultFail

	if err := s.db.WithContext(ctx).Save(pg).Error; err != nil {
		return fmt.Errorf("resolve expired session: %w", err)
	}

	metrics.GamesFailed.Inc()
	util.LogInfo("Session %s expired past window end, resolved as fail", pg.ID)
	return nil
}

func (s *Service) playerGameView(pg *models.PlayerGame, dg *models.DailyGame, guesses []models.Guess) models.PlayerGameView {
	return models.PlayerGameView{
		ID:          pg.ID,
		DailyGameID: pg.DailyGameID,
		StartTime:   pg.StartTime,
		EndTime:     pg.EndTime,
		GuessCount:  pg.GuessCount,
		Guesses: lo.Map(guesses, func(g models.Guess, _ int) models.GuessView {
			return models.GuessView{Word: g.Word, Feedback: g.Feedback, SubmittedAt: g.SubmittedAt}
		}),
		Result:           pg.Result,
		Completed:        pg.Completed,
		RemainingSeconds: remainingSeconds(dg.WindowEnd, s.now().UTC()),
		Hint:             s.hintFor(pg, dg),
	}
}

// hintFor reveals the answer's hint once the session has settled. An open
// session never sees it; the hint describes the secret word.
func (s *Service) hintFor(pg *models.PlayerGame, dg *models.DailyGame) string {
	if !pg.Completed {
		return ""
	}
	return s.corpus.HintFor(dg.SecretWord)
}

func dailyGameView(dg *models.DailyGame) models.DailyGameView {
	return models.DailyGameView{
		ID:          dg.ID,
		Date:        dg.Date,
		WindowStart: dg.WindowStart,
		WindowEnd:   dg.WindowEnd,
		Status:      dg.Status,
	}
}

func remainingSeconds(windowEnd, now time.Time) int64 {
	remaining := windowEnd.Sub(now)
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
