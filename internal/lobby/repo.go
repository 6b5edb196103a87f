// internal/lobby/repo.go
package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pickuphq/pickup/internal/models"
	"github.com/pickuphq/pickup/internal/store"
)

// TeardownQueue is the store queue holding ids of lobbies torn down by the
// sweeper or emptied by their last player, for the external janitor.
const TeardownQueue = "lobby_teardown"

func keyLobby(id uuid.UUID) string {
	return "lobby:" + id.String()
}

func keyPlayer(id uuid.UUID) string {
	return "player:" + id.String()
}

// Mutation is the commit a state-transition function requests. Lobby is the
// new record to write, or nil with Teardown set to delete it. IndexPut and
// IndexDel adjust player-index entries in the same atomic commit.
type Mutation struct {
	Lobby    *models.Lobby
	Teardown bool
	IndexPut []uuid.UUID
	IndexDel []uuid.UUID
}

// Repository reads and writes Lobby and player-index records on the store.
// All records share one TTL so a forgotten lobby and its index entries
// expire together.
type Repository struct {
	store store.Store
	ttl   time.Duration
}

func NewRepository(s store.Store, ttl time.Duration) *Repository {
	return &Repository{store: s, ttl: ttl}
}

// GetLobby returns the lobby record, or ErrNotFound if it is absent or expired.
func (r *Repository) GetLobby(ctx context.Context, id uuid.UUID) (*models.Lobby, error) {
	raw, found, err := r.store.Get(ctx, keyLobby(id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return decodeLobby(raw)
}

// PlayerLobbyID returns the lobby a player is indexed into, if any.
func (r *Repository) PlayerLobbyID(ctx context.Context, playerID uuid.UUID) (uuid.UUID, bool, error) {
	raw, found, err := r.store.Get(ctx, keyPlayer(playerID))
	if err != nil || !found {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt player index for %s: %w", playerID, err)
	}
	return id, true, nil
}

// DeletePlayerIndex removes a player-index entry outside any lobby commit.
// Used for best-effort cleanup when the entry points at a vanished lobby.
func (r *Repository) DeletePlayerIndex(ctx context.Context, playerID uuid.UUID) error {
	return r.store.Delete(ctx, keyPlayer(playerID))
}

// InsertLobby writes a brand-new lobby and its creator's index entry in one
// transaction. The creator's index key is watched, so two racing creations
// by the same player cannot both commit; an existing entry rejects with
// ErrAlreadyInLobby.
func (r *Repository) InsertLobby(ctx context.Context, l *models.Lobby) error {
	creatorKey := keyPlayer(l.CreatorID)
	return r.store.Transact(ctx, []string{creatorKey}, func(ctx context.Context, v store.View) ([]store.Write, error) {
		if _, found, err := v.Get(ctx, creatorKey); err != nil {
			return nil, err
		} else if found {
			return nil, ErrAlreadyInLobby
		}
		raw, err := encodeLobby(l)
		if err != nil {
			return nil, err
		}
		return []store.Write{
			{Key: keyLobby(l.ID), Value: raw, TTL: r.ttl},
			{Key: creatorKey, Value: []byte(l.ID.String()), TTL: r.ttl},
		}, nil
	})
}

// MutateLobby is the CAS transactor every mutating operation goes through:
// read the current lobby, run fn on the snapshot, commit the requested
// mutation only if neither the lobby record nor any watched player index
// changed in between. One attempt per call; a lost race returns
// store.ErrConflict and the caller decides whether to retry (the service
// never does — the actor is told to try again).
//
// fn must be pure on the snapshot it is given: no store access, no external
// calls. watchPlayers must name every player whose index entry the mutation
// inserts, so cross-lobby membership races are detected.
func (r *Repository) MutateLobby(ctx context.Context, id uuid.UUID, watchPlayers []uuid.UUID, fn func(l *models.Lobby) (*Mutation, error)) (*models.Lobby, error) {
	lobbyKey := keyLobby(id)
	watch := make([]string, 0, len(watchPlayers)+1)
	watch = append(watch, lobbyKey)
	for _, p := range watchPlayers {
		watch = append(watch, keyPlayer(p))
	}

	var result *models.Lobby
	err := r.store.Transact(ctx, watch, func(ctx context.Context, v store.View) ([]store.Write, error) {
		raw, found, err := v.Get(ctx, lobbyKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNotFound
		}
		l, err := decodeLobby(raw)
		if err != nil {
			return nil, err
		}

		m, err := fn(l)
		if err != nil {
			return nil, err
		}
		if m == nil {
			result = l // no-op, e.g. an idempotent sweep re-check
			return nil, nil
		}

		var writes []store.Write
		for _, pid := range m.IndexPut {
			pk := keyPlayer(pid)
			if prev, found, err := v.Get(ctx, pk); err != nil {
				return nil, err
			} else if found && string(prev) != id.String() {
				return nil, ErrAlreadyInLobby
			}
			writes = append(writes, store.Write{Key: pk, Value: []byte(id.String()), TTL: r.ttl})
		}
		for _, pid := range m.IndexDel {
			writes = append(writes, store.Write{Key: keyPlayer(pid), Delete: true})
		}

		if m.Teardown {
			writes = append(writes, store.Write{Key: lobbyKey, Delete: true})
			result = nil
			return writes, nil
		}

		out, err := encodeLobby(m.Lobby)
		if err != nil {
			return nil, err
		}
		writes = append(writes, store.Write{Key: lobbyKey, Value: out, TTL: r.ttl})
		result = m.Lobby
		return writes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ScanLobbies returns every lobby currently in the store.
func (r *Repository) ScanLobbies(ctx context.Context) ([]*models.Lobby, error) {
	entries, err := r.store.Scan(ctx, "lobby:")
	if err != nil {
		return nil, err
	}
	lobbies := make([]*models.Lobby, 0, len(entries))
	for _, e := range entries {
		l, err := decodeLobby(e.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Key, err)
		}
		lobbies = append(lobbies, l)
	}
	return lobbies, nil
}

// PushTeardown queues a torn-down lobby id for the external janitor.
func (r *Repository) PushTeardown(ctx context.Context, id uuid.UUID) error {
	return r.store.QueuePush(ctx, TeardownQueue, []byte(id.String()))
}

func encodeLobby(l *models.Lobby) ([]byte, error) {
	raw, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lobby %s: %w", l.ID, err)
	}
	return raw, nil
}

func decodeLobby(raw []byte) (*models.Lobby, error) {
	var l models.Lobby
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lobby record: %w", err)
	}
	return &l, nil
}
