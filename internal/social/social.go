package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"tagvorto/internal/game"
	"tagvorto/internal/metrics"
	"tagvorto/internal/models"
	"tagvorto/internal/store"
	"tagvorto/internal/util"
)

// Service implements the social features around the daily game: one-shot
// applause between players and toggleable follows.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Applaud records a congratulation from one user to another for a specific
// daily game. Self-applause is rejected and the (from, to, game) triple is
// at most once, enforced by the store's unique index; a repeat is a
// validation failure, not a toggle.
func (s *Service) Applaud(ctx context.Context, fromUserID, toUserID, dailyGameID string) error {
	if fromUserID == toUserID {
		return fmt.Errorf("%w: cannot applaud yourself", game.ErrValidation)
	}

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DailyGame{}).
		Where("id = ?", dailyGameID).Count(&count).Error; err != nil {
		return fmt.Errorf("check daily game: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: unknown daily game", game.ErrNotFound)
	}

	applause := models.Applause{
		ID:          uuid.NewString(),
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		DailyGameID: dailyGameID,
	}
	if err := s.db.WithContext(ctx).Create(&applause).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: already applauded this player for this game", game.ErrValidation)
		}
		return fmt.Errorf("create applause: %w", err)
	}

	metrics.ApplauseSent.Inc()
	util.LogInfo("User %s applauded user %s for game %s", fromUserID, toUserID, dailyGameID)
	return nil
}

// ToggleFollow flips the follow relationship and reports the resulting
// state: true when now following, false when the call removed the follow.
func (s *Service) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == followeeID {
		return false, fmt.Errorf("%w: cannot follow yourself", game.ErrValidation)
	}

	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var existing models.Follow
	err := s.db.WithContext(ctx).
		First(&existing, "follower_id = ? AND followee_id = ?", followerID, followeeID).Error
	switch {
	case err == nil:
		if err := s.db.WithContext(ctx).Delete(&existing).Error; err != nil {
			return false, fmt.Errorf("remove follow: %w", err)
		}
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		follow := models.Follow{
			ID:         uuid.NewString(),
			FollowerID: followerID,
			FolloweeID: followeeID,
		}
		if err := s.db.WithContext(ctx).Create(&follow).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Concurrent toggle won the insert; treat as following.
				return true, nil
			}
			return false, fmt.Errorf("create follow: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("load follow: %w", err)
	}
}

// GetFollowers lists the profiles following the given user.
func (s *Service) GetFollowers(ctx context.Context, userID string) ([]models.UserProfileView, error) {
	return s.profilesByFollowColumn(ctx, "followee_id", "follower_id", userID)
}

// GetFollowing lists the profiles the given user follows.
func (s *Service) GetFollowing(ctx context.Context, userID string) ([]models.UserProfileView, error) {
	return s.profilesByFollowColumn(ctx, "follower_id", "followee_id", userID)
}

func (s *Service) profilesByFollowColumn(ctx context.Context, whereCol, selectCol, userID string) ([]models.UserProfileView, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where(whereCol+" = ?", userID).
		Pluck(selectCol, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load follow relations: %w", err)
	}

	profiles := make([]models.UserProfileView, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProfile(ctx, id)
		if err != nil {
			if errors.Is(err, game.ErrNotFound) {
				continue
			}
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// GetProfile aggregates a user's public stats.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.UserProfileView, error) {
	ctx, cancel := store.WithTimeout(ctx)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown user", game.ErrNotFound)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	var totalGames, wins, applause int64
	if err := s.db.WithContext(ctx).Model(&models.PlayerGame{}).
		Where("user_id = ?", userID).Count(&totalGames).Error; err != nil {
		return nil, fmt.Errorf("count games: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.PlayerGame{}).
		Where("user_id = ? AND result = ?", userID, models.GameResultWin).Count(&wins).Error; err != nil {
		return nil, fmt.Errorf("count wins: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Applause{}).
		Where("to_user_id = ?", userID).Count(&applause).Error; err != nil {
		return nil, fmt.Errorf("count applause: %w", err)
	}

	return &models.UserProfileView{
		ID:            user.ID,
		UserName:      user.UserName,
		DisplayName:   lo.Ternary(user.DisplayName != "", user.DisplayName, user.UserName),
		IsAnonymous:   user.IsAnonymous,
		TotalGames:    totalGames,
		Wins:          wins,
		ApplauseCount: applause,
	}, nil
}
