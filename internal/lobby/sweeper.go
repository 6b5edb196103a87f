// internal/lobby/sweeper.go
//
// Time-based transitions. An external scheduler calls SweepActive on a
// short cadence and SweepStale on a long one; both are idempotent and apply
// every change through the same CAS transactor as user actions, so a sweep
// can never clobber a concurrent join or vote. A lobby whose commit loses a
// race is simply picked up again on the next pass.
package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/pickuphq/pickup/internal/models"
	"github.com/pickuphq/pickup/internal/store"
)

// SweepActive advances lobbies whose deadlines have passed: completed
// lobbies get finalized after the finalize delay, and filled lobbies whose
// settings vote stalled get a forced selection after the settings timeout.
func (s *Service) SweepActive(ctx context.Context) error {
	lobbies, err := s.repo.ScanLobbies(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, l := range lobbies {
		switch {
		case l.CompletedAt != nil && !l.Finalized && now.Sub(*l.CompletedAt) >= s.cfg.FinalizeDelay:
			s.finalizeLobby(ctx, l)
		case l.FilledAt != nil && !l.SettingsLocked() && now.Sub(*l.FilledAt) >= s.cfg.SettingsTimeout:
			s.forceSettings(ctx, l)
		}
	}
	return nil
}

// SweepStale tears down every lobby older than the stale threshold,
// whatever state it is in, and queues the id for the external janitor.
func (s *Service) SweepStale(ctx context.Context) error {
	lobbies, err := s.repo.ScanLobbies(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for _, l := range lobbies {
		if now.Sub(l.CreatedAt) < s.cfg.StaleAfter {
			continue
		}
		_, err := s.repo.MutateLobby(ctx, l.ID, nil, func(cur *models.Lobby) (*Mutation, error) {
			return &Mutation{Teardown: true, IndexDel: cur.Players}, nil
		})
		if s.skipSweepErr(err, l.ID, "stale teardown") {
			continue
		}
		if qErr := s.repo.PushTeardown(ctx, l.ID); qErr != nil {
			s.log.WithError(qErr).Warnf("failed to queue teardown for lobby %s", l.ID)
		}
		s.log.WithField("lobby", l.ID).Info("stale lobby torn down")
		s.publish(ctx, l.ID, map[string]interface{}{"type": "lobby_closed", "reason": "stale"})
	}
	return nil
}

func (s *Service) finalizeLobby(ctx context.Context, l *models.Lobby) {
	_, err := s.repo.MutateLobby(ctx, l.ID, nil, func(cur *models.Lobby) (*Mutation, error) {
		if cur.Finalized || cur.CompletedAt == nil {
			return nil, nil // already finalized by an earlier pass
		}
		cur.Finalized = true
		return &Mutation{Lobby: cur}, nil
	})
	if s.skipSweepErr(err, l.ID, "finalize") {
		return
	}
	s.publish(ctx, l.ID, map[string]interface{}{"type": "lobby_finalized"})
}

// forceSettings resolves a stalled settings vote: random over the submitted
// votes if there are any, else uniform over the original options.
func (s *Service) forceSettings(ctx context.Context, l *models.Lobby) {
	updated, err := s.repo.MutateLobby(ctx, l.ID, nil, func(cur *models.Lobby) (*Mutation, error) {
		if cur.SettingsLocked() {
			return nil, nil
		}
		cur.SelectedSettingID = SelectSetting(cur.SettingsVotes, cur.SettingsOptions, s.rng)
		return &Mutation{Lobby: cur}, nil
	})
	if s.skipSweepErr(err, l.ID, "settings timeout") {
		return
	}
	if updated.SettingsLocked() {
		s.log.WithField("lobby", l.ID).Infof("settings vote timed out, forced selection %q", updated.SelectedSettingID)
		s.publish(ctx, l.ID, map[string]interface{}{
			"type":     "settings_vote",
			"forced":   true,
			"selected": updated.SelectedSettingID,
		})
	}
}

// skipSweepErr reports whether a sweep action should move on: conflicts and
// vanished lobbies are expected under concurrency, anything else is logged.
func (s *Service) skipSweepErr(err error, lobbyID interface{}, action string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, store.ErrConflict) || errors.Is(err, ErrNotFound) {
		s.log.WithField("lobby", lobbyID).Debugf("%s skipped: %v", action, err)
	} else {
		s.log.WithError(err).Warnf("%s failed for lobby %v", action, lobbyID)
	}
	return true
}

// SweepLoop repeatedly invokes one sweep entry point until ctx is canceled.
// cmd/server runs two of these, one per cadence.
func SweepLoop(ctx context.Context, interval time.Duration, sweep func(context.Context) error, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
