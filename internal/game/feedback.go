package game

import (
	"fmt"
	"strings"

	"tagvorto/internal/constants"
	"tagvorto/internal/models"
)

// Evaluate compares a guess against the secret word and classifies every
// letter. Two passes keep repeated letters honest: pass one consumes exact
// matches from the secret's letter counts, pass two hands the remaining
// counts to misplaced letters in index order, so a letter guessed twice when
// the secret holds it once earns exactly one non-absent mark, at the
// leftmost position. Pure: same inputs always yield the same feedback.
func Evaluate(guess, secret string) ([]models.LetterFeedback, error) {
	guess = strings.ToUpper(strings.TrimSpace(guess))
	secret = strings.ToUpper(strings.TrimSpace(secret))

	if len(guess) != constants.WordLength || len(secret) != constants.WordLength {
		return nil, fmt.Errorf("%w: words must be %d letters", ErrValidation, constants.WordLength)
	}

	feedback := make([]models.LetterFeedback, constants.WordLength)
	remaining := make(map[byte]int, constants.WordLength)
	for i := range constants.WordLength {
		remaining[secret[i]]++
	}

	for i := range constants.WordLength {
		if guess[i] == secret[i] {
			feedback[i] = models.FeedbackCorrect
			remaining[guess[i]]--
		}
	}

	for i := range constants.WordLength {
		if feedback[i] == models.FeedbackCorrect {
			continue
		}
		if remaining[guess[i]] > 0 {
			feedback[i] = models.FeedbackPresent
			remaining[guess[i]]--
		} else {
			feedback[i] = models.FeedbackAbsent
		}
	}

	return feedback, nil
}

// IsWinning reports whether every letter landed in the correct position.
func IsWinning(feedback []models.LetterFeedback) bool {
	for _, f := range feedback {
		if f != models.FeedbackCorrect {
			return false
		}
	}
	return len(feedback) == constants.WordLength
}
