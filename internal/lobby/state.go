// internal/lobby/state.go
//
// Pure state transitions: each function takes a lobby snapshot and an input
// and either mutates the snapshot into the candidate next state or rejects
// with a validation error. No store access, no external calls, so a caller
// that loses the CAS race can re-run the same function against the newest
// snapshot and get a correct answer.
package lobby

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pickuphq/pickup/internal/models"
)

func newLobby(creatorID uuid.UUID, playerCount, ratingRequirement int, options []string, now time.Time) (*models.Lobby, error) {
	if playerCount < models.MinLobbySize || playerCount > models.MaxLobbySize {
		return nil, ErrBadPlayerCount
	}
	if ratingRequirement < 0 {
		return nil, ErrBadRatingRequirement
	}
	if options == nil {
		options = models.DefaultSettingsOptions
	}
	if len(options) == 0 {
		return nil, ErrNoSettingsOptions
	}
	return &models.Lobby{
		ID:                uuid.New(),
		CreatorID:         creatorID,
		PlayerCount:       playerCount,
		RatingRequirement: ratingRequirement,
		Players:           []uuid.UUID{creatorID},
		SettingsOptions:   options,
		SettingsVotes:     make(map[uuid.UUID]string),
		CreatedAt:         now,
	}, nil
}

func applyJoin(l *models.Lobby, playerID uuid.UUID, now time.Time) error {
	if l.SettingsLocked() {
		return ErrSettingsLocked
	}
	if l.HasPlayer(playerID) {
		return ErrAlreadyInLobby
	}
	if l.IsFull() {
		return ErrLobbyFull
	}
	l.Players = append(l.Players, playerID)
	if l.IsFull() {
		t := now
		l.FilledAt = &t
	}
	return nil
}

func applyLeave(l *models.Lobby, playerID uuid.UUID) error {
	if l.SettingsLocked() {
		return ErrSettingsLocked
	}
	idx := -1
	for i, p := range l.Players {
		if p == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotInLobby
	}
	l.Players = append(l.Players[:idx], l.Players[idx+1:]...)
	delete(l.SettingsVotes, playerID)
	if !l.IsFull() {
		l.FilledAt = nil
	}
	return nil
}

// applyVoteSettings records (or replaces) a settings vote and, once every
// seat has voted, draws the final configuration from the vote multiset.
func applyVoteSettings(l *models.Lobby, playerID uuid.UUID, choice string, rng *rand.Rand) error {
	if l.SettingsLocked() {
		return ErrSettingsLocked
	}
	if !l.HasPlayer(playerID) {
		return ErrNotInLobby
	}
	if !l.HasSettingsOption(choice) {
		return ErrBadSettingsChoice
	}
	if l.SettingsVotes == nil {
		l.SettingsVotes = make(map[uuid.UUID]string)
	}
	l.SettingsVotes[playerID] = choice
	if len(l.SettingsVotes) >= l.PlayerCount {
		l.SelectedSettingID = SelectSetting(l.SettingsVotes, l.SettingsOptions, rng)
	}
	return nil
}

// applyVoteWinner records (or replaces) a winner vote and re-runs the tally.
// On resolution it stamps CompletedAt; on a real winner it also claims the
// result submission in the same candidate state, so the scoring call is made
// at most once no matter how the commit races. Returns whether this vote
// resolved the lobby to a real winner.
func applyVoteWinner(l *models.Lobby, playerID uuid.UUID, choice string, now time.Time) (bool, error) {
	if l.Resolved() {
		return false, ErrWinnerDecided
	}
	if !l.HasPlayer(playerID) {
		return false, ErrNotInLobby
	}
	if choice != models.NotPlayedVote {
		winnerID, err := uuid.Parse(choice)
		if err != nil || !l.HasPlayer(winnerID) {
			return false, ErrBadWinnerChoice
		}
	}

	// Replace any earlier vote: the latest cast determines tally order.
	for i, v := range l.WinnerVotes {
		if v.Voter == playerID {
			l.WinnerVotes = append(l.WinnerVotes[:i], l.WinnerVotes[i+1:]...)
			break
		}
	}
	l.WinnerVotes = append(l.WinnerVotes, models.WinnerVote{Voter: playerID, Choice: choice})

	outcome := ResolveWinner(l.WinnerVotes, l.PlayerCount)
	if !outcome.Resolved {
		return false, nil
	}
	l.Winner = outcome.Winner
	t := now
	l.CompletedAt = &t
	realWinner := outcome.Winner != models.WinnerNoResult && outcome.Winner != models.WinnerNoMajority
	if realWinner {
		l.ResultSubmitted = true
	}
	return realWinner, nil
}
