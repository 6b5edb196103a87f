// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Lobby size bounds. The winner-vote threshold table in internal/lobby/tally.go
// is tuned for 4-6 seat lobbies but generalizes across the whole range.
const (
	MinLobbySize = 2
	MaxLobbySize = 10
)

// NotPlayedThreshold is how many "not played" winner votes abandon the lobby.
const NotPlayedThreshold = 2

// Winner-vote and winner-field sentinels. A Lobby's Winner holds a player
// UUID string, one of these, or "" while voting is still open.
const (
	NotPlayedVote    = "not_played"  // winner-vote choice: the game was never played
	WinnerNoResult   = "no_result"   // abandoned via NotPlayedThreshold
	WinnerNoMajority = "no_majority" // every vote cast, nobody reached the threshold
)

// DefaultSettingsOptions is the configuration set offered to voters when the
// creator does not supply one.
var DefaultSettingsOptions = []string{
	"all_pick",
	"captains_mode",
	"random_draft",
	"single_draft",
}

// WinnerVote is one participant's recorded winner choice. Votes are kept in
// cast order; a re-vote removes the old entry and appends a new one.
type WinnerVote struct {
	Voter  uuid.UUID `json:"voter"`
	Choice string    `json:"choice"` // player UUID string or NotPlayedVote
}

// Lobby is one active game session, stored as a single versioned record.
type Lobby struct {
	ID                uuid.UUID `json:"id"`
	CreatorID         uuid.UUID `json:"creator_id"`
	PlayerCount       int       `json:"player_count"`
	RatingRequirement int       `json:"rating_requirement"`

	Players []uuid.UUID `json:"players"`

	SettingsOptions   []string             `json:"settings_options"`
	SettingsVotes     map[uuid.UUID]string `json:"settings_votes"`
	SelectedSettingID string               `json:"selected_setting_id,omitempty"`

	WinnerVotes []WinnerVote `json:"winner_votes"`
	Winner      string       `json:"winner,omitempty"`

	// ResultSubmitted guards the external scoring call: once set, the result
	// report is never attempted again for this lobby.
	ResultSubmitted bool `json:"result_submitted"`
	Finalized       bool `json:"finalized"`

	CreatedAt   time.Time  `json:"created_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFull reports whether the roster has reached capacity.
func (l *Lobby) IsFull() bool {
	return len(l.Players) >= l.PlayerCount
}

// HasPlayer reports whether id is on the roster.
func (l *Lobby) HasPlayer(id uuid.UUID) bool {
	for _, p := range l.Players {
		if p == id {
			return true
		}
	}
	return false
}

// SettingsLocked reports whether the settings vote has been decided, which
// also freezes the roster.
func (l *Lobby) SettingsLocked() bool {
	return l.SelectedSettingID != ""
}

// Resolved reports whether a winner (or a no-result sentinel) has been set.
func (l *Lobby) Resolved() bool {
	return l.Winner != ""
}

// HasSettingsOption reports whether choice is among the offered options.
func (l *Lobby) HasSettingsOption(choice string) bool {
	for _, opt := range l.SettingsOptions {
		if opt == choice {
			return true
		}
	}
	return false
}
