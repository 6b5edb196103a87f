// internal/database/results.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pickuphq/pickup/internal/lobby"
)

// ScoreReporter implements the scoring collaborator: a resolved match is
// recorded as one match_results row plus a match_participants row per seat,
// in a single transaction. Callers guard against duplicate submissions with
// the lobby's ResultSubmitted flag; there is no uniqueness retry here.
type ScoreReporter struct{}

func (ScoreReporter) ReportResult(ctx context.Context, result lobby.MatchResult) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO match_results (lobby_id, setting_id, winner_id)
			VALUES ($1, $2, $3)
		`, result.LobbyID, result.SettingID, result.WinnerID)
		if err != nil {
			return err
		}
		for seat, playerID := range result.Players {
			if _, err := tx.Exec(ctx, `
				INSERT INTO match_participants (lobby_id, player_id, seat)
				VALUES ($1, $2, $3)
			`, result.LobbyID, playerID, seat); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record match result for lobby %s: %w", result.LobbyID, err)
	}
	return nil
}
