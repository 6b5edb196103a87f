// internal/lobby/errors.go
package lobby

import (
	"errors"
	"fmt"
)

// Error taxonomy bases. Validation rejections never mutate state and are
// surfaced verbatim to the actor; conflicts mean the commit lost a race and
// the same action is safe to retry; external failures come from the rating
// or scoring collaborators. Use errors.Is against these to classify.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("lobby no longer available")
	ErrExternal   = errors.New("external service failure")
)

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

var (
	ErrLobbyFull            = validation("lobby is full")
	ErrAlreadyInLobby       = validation("player is already in a lobby")
	ErrNotInLobby           = validation("player is not in this lobby")
	ErrSettingsLocked       = validation("settings are already locked")
	ErrWinnerDecided        = validation("winner has already been decided")
	ErrBadSettingsChoice    = validation("choice is not among the lobby settings options")
	ErrBadWinnerChoice      = validation("winner choice is not a lobby participant")
	ErrBelowRating          = validation("rating below lobby requirement")
	ErrBadPlayerCount       = validation("player count out of range")
	ErrBadRatingRequirement = validation("rating requirement must not be negative")
	ErrNoSettingsOptions    = validation("lobby needs at least one settings option")
)
