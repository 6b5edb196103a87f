// internal/lobby/tally.go
package lobby

import (
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/pickuphq/pickup/internal/models"
)

// RequiredWinnerVotes is how many matching winner votes decide a lobby of
// the given size: 4 and 5 seats need 3, 6 seats need 4, anything else
// ceil(0.6 * n).
func RequiredWinnerVotes(playerCount int) int {
	switch playerCount {
	case 4, 5:
		return 3
	case 6:
		return 4
	}
	return int(math.Ceil(0.6 * float64(playerCount)))
}

// SelectSetting draws the final configuration from the multiset of
// submitted votes, so an option chosen by more voters is proportionally
// more likely. With no votes at all it falls back to a uniform draw over
// the offered options. rng may be nil to use the shared source.
func SelectSetting(votes map[uuid.UUID]string, options []string, rng *rand.Rand) string {
	pool := make([]string, 0, len(votes))
	for _, choice := range votes {
		pool = append(pool, choice)
	}
	if len(pool) == 0 {
		if len(options) == 0 {
			return ""
		}
		return options[intn(rng, len(options))]
	}
	// Map iteration order is random; sort so a seeded rng draws deterministically.
	sort.Strings(pool)
	return pool[intn(rng, len(pool))]
}

// WinnerOutcome is the result of tallying the winner votes recorded so far.
type WinnerOutcome struct {
	Resolved bool
	// Winner is a player UUID string, models.WinnerNoResult, or
	// models.WinnerNoMajority; empty while unresolved.
	Winner string
}

// ResolveWinner applies the tally rule to votes in cast order:
//
//  1. models.NotPlayedThreshold "not played" votes abandon the lobby
//     immediately, regardless of any real votes already recorded.
//  2. Otherwise the first candidate to accumulate RequiredWinnerVotes wins.
//     Scanning in cast order makes the tie-break explicit: whichever
//     candidate reached the threshold earliest.
//  3. With all playerCount votes in and no winner, the lobby resolves to
//     "no majority".
//  4. Otherwise voting stays open.
func ResolveWinner(votes []models.WinnerVote, playerCount int) WinnerOutcome {
	notPlayed := 0
	for _, v := range votes {
		if v.Choice == models.NotPlayedVote {
			notPlayed++
		}
	}
	if notPlayed >= models.NotPlayedThreshold {
		return WinnerOutcome{Resolved: true, Winner: models.WinnerNoResult}
	}

	required := RequiredWinnerVotes(playerCount)
	counts := make(map[string]int, len(votes))
	for _, v := range votes {
		if v.Choice == models.NotPlayedVote {
			continue
		}
		counts[v.Choice]++
		if counts[v.Choice] >= required {
			return WinnerOutcome{Resolved: true, Winner: v.Choice}
		}
	}

	if len(votes) >= playerCount {
		return WinnerOutcome{Resolved: true, Winner: models.WinnerNoMajority}
	}
	return WinnerOutcome{}
}

// intn draws from rng when given one, else from the goroutine-safe shared source.
func intn(rng *rand.Rand, n int) int {
	if rng != nil {
		return rng.Intn(n)
	}
	return rand.Intn(n)
}
