package models

import "time"

// View types returned to the web layer. These carry no secret word and no
// object back-references, only identifiers.

type UserView struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type AuthResult struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         UserView `json:"user"`
}

type DailyGameView struct {
	ID          string     `json:"id"`
	Date        string     `json:"date"`
	WindowStart time.Time  `json:"windowStart"`
	WindowEnd   time.Time  `json:"windowEnd"`
	Status      GameStatus `json:"status"`
}

type GuessView struct {
	Word        string           `json:"word"`
	Feedback    []LetterFeedback `json:"feedback"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

type PlayerGameView struct {
	ID               string      `json:"id"`
	DailyGameID      string      `json:"dailyGameId"`
	StartTime        time.Time   `json:"startTime"`
	EndTime          *time.Time  `json:"endTime,omitempty"`
	GuessCount       int         `json:"guessCount"`
	Guesses          []GuessView `json:"guesses"`
	Result           GameResult  `json:"result"`
	Completed        bool        `json:"completed"`
	RemainingSeconds int64       `json:"remainingSeconds"`
	// Hint for the answer word, revealed only once the session settles.
	Hint string `json:"hint,omitempty"`
}

// GuessOutcome is the response to a single guess submission.
type GuessOutcome struct {
	GuessWord        string           `json:"guessWord"`
	Feedback         []LetterFeedback `json:"feedback"`
	Result           GameResult       `json:"result"`
	RemainingSeconds int64            `json:"remainingSeconds"`
	IsComplete       bool             `json:"isComplete"`
	Hint             string           `json:"hint,omitempty"`
}

type LeaderboardEntryView struct {
	Rank        int       `json:"rank"`
	UserName    string    `json:"userName"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Guesses     int       `json:"guesses"`
	CompletedAt time.Time `json:"completedAt"`
}

type UserProfileView struct {
	ID            string `json:"id"`
	UserName      string `json:"userName"`
	DisplayName   string `json:"displayName"`
	IsAnonymous   bool   `json:"isAnonymous"`
	TotalGames    int64  `json:"totalGames"`
	Wins          int64  `json:"wins"`
	ApplauseCount int64  `json:"applauseCount"`
}
