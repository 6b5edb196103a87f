// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/pickuphq/pickup/internal/lobby"
)

// Action endpoints. Every request is a typed action from an authenticated
// actor: the actor comes from the session cookie, the target lobby and the
// payload from the JSON body. The response is the updated lobby record or a
// typed rejection (see writeActionError).

type createLobbyRequest struct {
	PlayerCount       int      `json:"player_count"`
	RatingRequirement int      `json:"rating_requirement"`
	SettingsOptions   []string `json:"settings_options,omitempty"`
}

type lobbyActionRequest struct {
	LobbyID uuid.UUID `json:"lobby_id"`
	Choice  string    `json:"choice,omitempty"`
}

// CreateLobbyHandler handles POST /lobby/create.
func CreateLobbyHandler(svc *lobby.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		actorID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad lobby request payload", http.StatusBadRequest)
			return
		}
		l, err := svc.CreateLobby(r.Context(), actorID, req.PlayerCount, req.RatingRequirement, req.SettingsOptions)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// GetLobbyHandler handles GET /lobby/get?id=<uuid>.
func GetLobbyHandler(svc *lobby.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := authenticateRequest(r); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		id, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}
		l, err := svc.GetLobby(r.Context(), id)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, l)
	}
}

// JoinLobbyHandler handles POST /lobby/join.
func JoinLobbyHandler(svc *lobby.Service) http.HandlerFunc {
	return lobbyAction(func(r *http.Request, actorID uuid.UUID, req lobbyActionRequest) (interface{}, error) {
		return svc.Join(r.Context(), req.LobbyID, actorID)
	})
}

// LeaveLobbyHandler handles POST /lobby/leave. Leaving as the last player
// tears the lobby down, reported as {"closed": true}.
func LeaveLobbyHandler(svc *lobby.Service) http.HandlerFunc {
	return lobbyAction(func(r *http.Request, actorID uuid.UUID, req lobbyActionRequest) (interface{}, error) {
		l, err := svc.Leave(r.Context(), req.LobbyID, actorID)
		if err != nil {
			return nil, err
		}
		if l == nil {
			return map[string]interface{}{"closed": true}, nil
		}
		return l, nil
	})
}

// VoteSettingsHandler handles POST /lobby/vote/settings.
func VoteSettingsHandler(svc *lobby.Service) http.HandlerFunc {
	return lobbyAction(func(r *http.Request, actorID uuid.UUID, req lobbyActionRequest) (interface{}, error) {
		return svc.VoteSettings(r.Context(), req.LobbyID, actorID, req.Choice)
	})
}

// VoteWinnerHandler handles POST /lobby/vote/winner. Choice is a player id
// or the "not_played" sentinel.
func VoteWinnerHandler(svc *lobby.Service) http.HandlerFunc {
	return lobbyAction(func(r *http.Request, actorID uuid.UUID, req lobbyActionRequest) (interface{}, error) {
		return svc.VoteWinner(r.Context(), req.LobbyID, actorID, req.Choice)
	})
}

// lobbyAction factors the shared decode/auth/respond plumbing out of the
// POST action handlers.
func lobbyAction(do func(r *http.Request, actorID uuid.UUID, req lobbyActionRequest) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		actorID, err := authenticateRequest(r)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		var req lobbyActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LobbyID == uuid.Nil {
			http.Error(w, "bad action payload", http.StatusBadRequest)
			return
		}
		resp, err := do(r, actorID, req)
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
