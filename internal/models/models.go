package models

import (
	"time"
)

type GameStatus string

const (
	GameStatusOpen   GameStatus = "open"
	GameStatusClosed GameStatus = "closed"
)

type GameResult string

const (
	GameResultInProgress GameResult = "in_progress"
	GameResultWin        GameResult = "win"
	GameResultFail       GameResult = "fail"
)

// LetterFeedback classifies one guessed letter against the secret word.
type LetterFeedback string

const (
	FeedbackCorrect LetterFeedback = "correct"
	FeedbackPresent LetterFeedback = "present"
	FeedbackAbsent  LetterFeedback = "absent"
)

// User represents a registered or anonymous player.
type User struct {
	ID                 string `gorm:"primaryKey;size:36"`
	UserName           string `gorm:"uniqueIndex;size:64;not null"`
	DisplayName        string `gorm:"size:64"`
	PasswordHash       string `json:"-"`
	IsAnonymous        bool   `gorm:"not null;default:false"`
	RefreshToken       string `gorm:"index;size:64"`
	RefreshTokenExpiry time.Time
	CreatedAt          time.Time
}

// DailyGame is the single puzzle instance for one calendar date.
// Immutable once created except for Status.
type DailyGame struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Date        string     `gorm:"uniqueIndex;size:10;not null"` // yyyy-MM-dd, UTC
	SecretWord  string     `gorm:"size:5;not null" json:"-"`
	WindowStart time.Time  `gorm:"not null"`
	WindowEnd   time.Time  `gorm:"not null"`
	Status      GameStatus `gorm:"size:16;not null"`
	CreatedAt   time.Time
}

// PlayerGame is one user's session against one DailyGame. The composite
// unique index is the synchronization point for concurrent joins.
type PlayerGame struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"size:36;not null;uniqueIndex:idx_player_daily"`
	DailyGameID  string `gorm:"size:36;not null;uniqueIndex:idx_player_daily;index"`
	StartTime    time.Time
	EndTime      *time.Time
	Completed    bool       `gorm:"not null;default:false"`
	CompletionMs int64      `gorm:"not null;default:0"` // EndTime - StartTime, milliseconds
	GuessCount   int        `gorm:"not null;default:0"`
	Result       GameResult `gorm:"size:16;not null"`
	Guesses      []Guess    `gorm:"foreignKey:PlayerGameID"`
}

// Guess is an append-only child of PlayerGame; SubmittedAt order is canonical.
type Guess struct {
	ID           string           `gorm:"primaryKey;size:36"`
	PlayerGameID string           `gorm:"size:36;not null;index"`
	Word         string           `gorm:"size:5;not null"`
	Feedback     []LetterFeedback `gorm:"serializer:json"`
	SubmittedAt  time.Time        `gorm:"index"`
}

// LeaderboardEntry is a derived projection, fully replaced on each
// recalculation pass. Never authoritative game state.
type LeaderboardEntry struct {
	ID          string `gorm:"primaryKey;size:36"`
	DailyGameID string `gorm:"size:36;not null;uniqueIndex:idx_board_user;index"`
	UserID      string `gorm:"size:36;not null;uniqueIndex:idx_board_user"`
	Rank        int    `gorm:"not null"`
	Score       int    `gorm:"not null"`
	GuessCount  int    `gorm:"not null"`
	CompletedAt time.Time
}

// Applause is at most one per (from, to, game) triple. Not a toggle.
type Applause struct {
	ID          string `gorm:"primaryKey;size:36"`
	FromUserID  string `gorm:"size:36;not null;uniqueIndex:idx_applause_triple"`
	ToUserID    string `gorm:"size:36;not null;uniqueIndex:idx_applause_triple;index"`
	DailyGameID string `gorm:"size:36;not null;uniqueIndex:idx_applause_triple"`
	CreatedAt   time.Time
}

// Follow is one row per (follower, followee) pair; presence is toggled.
type Follow struct {
	ID         string `gorm:"primaryKey;size:36"`
	FollowerID string `gorm:"size:36;not null;uniqueIndex:idx_follow_pair"`
	FolloweeID string `gorm:"size:36;not null;uniqueIndex:idx_follow_pair;index"`
	CreatedAt  time.Time
}
