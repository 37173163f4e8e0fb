package game

import "errors"

// Error taxonomy surfaced to the web layer. Handlers classify with
// errors.Is; everything else is treated as an internal store failure.
var (
	// ErrValidation marks malformed input: wrong word length, a word outside
	// the accepted list, or a bad date string. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a duplicate join for the same (user, date).
	ErrConflict = errors.New("already joined")

	// ErrNotFound marks an unknown daily game, session, or user.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition marks a guess without a join, or after completion.
	ErrPrecondition = errors.New("precondition failed")
)
