// internal/lobby/service.go
package lobby

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pickuphq/pickup/internal/models"
)

// RatingFetcher looks up a player's rating before a gated create or join.
// Implemented by the profile database; faked in tests.
type RatingFetcher interface {
	FetchRating(ctx context.Context, playerID uuid.UUID) (int, error)
}

// MatchResult is what gets reported to the scoring service when a lobby
// resolves to a real winner.
type MatchResult struct {
	LobbyID   uuid.UUID
	SettingID string
	Players   []uuid.UUID
	WinnerID  uuid.UUID
}

// ResultReporter submits a resolved match to the scoring service. The
// service invokes it at most once per lobby, guarded by ResultSubmitted.
type ResultReporter interface {
	ReportResult(ctx context.Context, result MatchResult) error
}

// Notifier publishes lobby events for the messaging surface. Delivery is
// best effort; a publish failure never rolls back a committed transition.
type Notifier interface {
	Publish(ctx context.Context, lobbyID uuid.UUID, event map[string]interface{}) error
}

// Config holds the time thresholds and the record TTL.
type Config struct {
	RecordTTL       time.Duration // expiry on lobby and player-index records
	SettingsTimeout time.Duration // filled but unvoted lobbies get forced after this
	FinalizeDelay   time.Duration // completed lobbies get finalized after this
	StaleAfter      time.Duration // any lobby older than this is torn down
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RecordTTL:       48 * time.Hour,
		SettingsTimeout: 5 * time.Minute,
		FinalizeDelay:   10 * time.Minute,
		StaleAfter:      24 * time.Hour,
	}
}

// ConfigFromEnv reads threshold overrides from LOBBY_TTL,
// SETTINGS_VOTE_TIMEOUT, FINALIZE_DELAY and STALE_LOBBY_AGE (duration
// strings, e.g. "5m").
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.RecordTTL = getEnvDuration("LOBBY_TTL", cfg.RecordTTL)
	cfg.SettingsTimeout = getEnvDuration("SETTINGS_VOTE_TIMEOUT", cfg.SettingsTimeout)
	cfg.FinalizeDelay = getEnvDuration("FINALIZE_DELAY", cfg.FinalizeDelay)
	cfg.StaleAfter = getEnvDuration("STALE_LOBBY_AGE", cfg.StaleAfter)
	return cfg
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Service is the lobby state machine: every inbound action maps to one
// validated transition committed through the repository's CAS transactor.
// There is no in-process shared lobby state, so any number of Service
// instances can run against the same store.
type Service struct {
	repo    *Repository
	ratings RatingFetcher
	scores  ResultReporter
	notify  Notifier
	cfg     Config
	log     *logrus.Logger

	rng *rand.Rand       // nil uses the shared source; tests seed it
	now func() time.Time // tests override
}

func NewService(repo *Repository, ratings RatingFetcher, scores ResultReporter, notify Notifier, cfg Config, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		repo:    repo,
		ratings: ratings,
		scores:  scores,
		notify:  notify,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// GetLobby returns the current lobby record.
func (s *Service) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	return s.repo.GetLobby(ctx, id)
}

// CreateLobby validates the inputs, applies the rating gate, and commits a
// fresh lobby with the creator seated, atomically with the creator's
// player-index entry.
func (s *Service) CreateLobby(ctx context.Context, creatorID uuid.UUID, playerCount, ratingRequirement int, options []string) (*models.Lobby, error) {
	if ratingRequirement > 0 {
		if err := s.checkRating(ctx, creatorID, ratingRequirement); err != nil {
			return nil, err
		}
	}
	s.clearStaleIndex(ctx, creatorID)

	l, err := newLobby(creatorID, playerCount, ratingRequirement, options, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertLobby(ctx, l); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"lobby":   l.ID,
		"creator": creatorID,
		"seats":   playerCount,
	}).Info("lobby created")
	s.publish(ctx, l.ID, map[string]interface{}{
		"type":    "lobby_created",
		"creator": creatorID.String(),
		"seats":   playerCount,
	})
	return l, nil
}

// Join seats a player. The player's index key is watched in the same
// transaction, so two racing joins by one player into different lobbies
// cannot both commit.
func (s *Service) Join(ctx context.Context, lobbyID, playerID uuid.UUID) (*models.Lobby, error) {
	current, err := s.repo.GetLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if current.RatingRequirement > 0 {
		if err := s.checkRating(ctx, playerID, current.RatingRequirement); err != nil {
			return nil, err
		}
	}
	s.clearStaleIndex(ctx, playerID)

	updated, err := s.repo.MutateLobby(ctx, lobbyID, []uuid.UUID{playerID}, func(l *models.Lobby) (*Mutation, error) {
		if err := applyJoin(l, playerID, s.now()); err != nil {
			return nil, err
		}
		return &Mutation{Lobby: l, IndexPut: []uuid.UUID{playerID}}, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, lobbyID, map[string]interface{}{
		"type":   "player_joined",
		"player": playerID.String(),
		"filled": updated.IsFull(),
	})
	return updated, nil
}

// Leave unseats a player and drops their settings vote. The last player out
// tears the lobby down in the same commit.
func (s *Service) Leave(ctx context.Context, lobbyID, playerID uuid.UUID) (*models.Lobby, error) {
	updated, err := s.repo.MutateLobby(ctx, lobbyID, nil, func(l *models.Lobby) (*Mutation, error) {
		if err := applyLeave(l, playerID); err != nil {
			return nil, err
		}
		if len(l.Players) == 0 {
			return &Mutation{Teardown: true, IndexDel: []uuid.UUID{playerID}}, nil
		}
		return &Mutation{Lobby: l, IndexDel: []uuid.UUID{playerID}}, nil
	})
	if err != nil {
		return nil, err
	}

	if updated == nil {
		// Lobby emptied and deleted.
		if qErr := s.repo.PushTeardown(ctx, lobbyID); qErr != nil {
			s.log.WithError(qErr).Warnf("failed to queue teardown for lobby %s", lobbyID)
		}
		s.publish(ctx, lobbyID, map[string]interface{}{"type": "lobby_closed", "reason": "empty"})
		return nil, nil
	}

	s.publish(ctx, lobbyID, map[string]interface{}{
		"type":   "player_left",
		"player": playerID.String(),
	})
	return updated, nil
}

// VoteSettings records a configuration vote; the vote that completes the
// set triggers the weighted random draw and locks the roster.
func (s *Service) VoteSettings(ctx context.Context, lobbyID, playerID uuid.UUID, choice string) (*models.Lobby, error) {
	updated, err := s.repo.MutateLobby(ctx, lobbyID, nil, func(l *models.Lobby) (*Mutation, error) {
		if err := applyVoteSettings(l, playerID, choice, s.rng); err != nil {
			return nil, err
		}
		return &Mutation{Lobby: l}, nil
	})
	if err != nil {
		return nil, err
	}

	event := map[string]interface{}{
		"type":   "settings_vote",
		"player": playerID.String(),
		"choice": choice,
	}
	if updated.SettingsLocked() {
		event["selected"] = updated.SelectedSettingID
	}
	s.publish(ctx, lobbyID, event)
	return updated, nil
}

// VoteWinner records a winner vote and re-tallies. If this vote resolves
// the lobby to a real winner, the scoring service is invoked exactly once
// after the commit; the ResultSubmitted flag was claimed inside the commit,
// so a failed report is surfaced but never retried.
func (s *Service) VoteWinner(ctx context.Context, lobbyID, playerID uuid.UUID, choice string) (*models.Lobby, error) {
	var realWinner bool
	updated, err := s.repo.MutateLobby(ctx, lobbyID, nil, func(l *models.Lobby) (*Mutation, error) {
		resolved, err := applyVoteWinner(l, playerID, choice, s.now())
		if err != nil {
			return nil, err
		}
		realWinner = resolved
		return &Mutation{Lobby: l}, nil
	})
	if err != nil {
		return nil, err
	}

	event := map[string]interface{}{
		"type":   "winner_vote",
		"player": playerID.String(),
		"choice": choice,
	}
	if updated.Resolved() {
		event["winner"] = updated.Winner
	}
	s.publish(ctx, lobbyID, event)

	if realWinner {
		s.submitResult(ctx, updated)
	}
	return updated, nil
}

// submitResult makes the single scoring call for a resolved lobby. The
// winner resolution is already committed; a failure here only loses the
// report, never the result.
func (s *Service) submitResult(ctx context.Context, l *models.Lobby) {
	if s.scores == nil {
		return
	}
	winnerID, err := uuid.Parse(l.Winner)
	if err != nil {
		s.log.WithError(err).Errorf("lobby %s resolved with unparseable winner %q", l.ID, l.Winner)
		return
	}
	result := MatchResult{
		LobbyID:   l.ID,
		SettingID: l.SelectedSettingID,
		Players:   l.Players,
		WinnerID:  winnerID,
	}
	if err := s.scores.ReportResult(ctx, result); err != nil {
		s.log.WithError(err).WithField("lobby", l.ID).Error("result report failed; submission is not retried")
		return
	}
	s.log.WithFields(logrus.Fields{"lobby": l.ID, "winner": winnerID}).Info("match result reported")
}

// checkRating applies the rating gate. A fetch failure or missing profile
// counts as rating 0, which fails any positive requirement without
// mutating state.
func (s *Service) checkRating(ctx context.Context, playerID uuid.UUID, requirement int) error {
	rating := 0
	if s.ratings != nil {
		r, err := s.ratings.FetchRating(ctx, playerID)
		if err != nil {
			s.log.WithError(err).Warnf("rating lookup failed for %s, treating as 0", playerID)
		} else {
			rating = r
		}
	}
	if rating < requirement {
		return ErrBelowRating
	}
	return nil
}

// clearStaleIndex drops a player-index entry whose lobby no longer exists,
// so an expired lobby does not lock its players out forever.
func (s *Service) clearStaleIndex(ctx context.Context, playerID uuid.UUID) {
	lid, found, err := s.repo.PlayerLobbyID(ctx, playerID)
	if err != nil || !found {
		return
	}
	if _, err := s.repo.GetLobby(ctx, lid); errors.Is(err, ErrNotFound) {
		if delErr := s.repo.DeletePlayerIndex(ctx, playerID); delErr != nil {
			s.log.WithError(delErr).Warnf("failed to clear stale index for %s", playerID)
			return
		}
		s.log.Infof("cleared stale player index %s -> %s", playerID, lid)
	}
}

func (s *Service) publish(ctx context.Context, lobbyID uuid.UUID, event map[string]interface{}) {
	if s.notify == nil {
		return
	}
	if err := s.notify.Publish(ctx, lobbyID, event); err != nil {
		s.log.WithError(err).Warnf("failed to publish %v event for lobby %s", event["type"], lobbyID)
	}
}
