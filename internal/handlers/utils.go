// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pickuphq/pickup/internal/auth"
	"github.com/pickuphq/pickup/internal/lobby"
	"github.com/pickuphq/pickup/internal/store"
)

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authenticateRequest resolves the acting user from the auth_token cookie.
func authenticateRequest(r *http.Request) (uuid.UUID, error) {
	cookie := r.Header.Get("Cookie")
	if !strings.Contains(cookie, "auth_token=") {
		return uuid.Nil, errors.New("missing auth_token")
	}
	userIDStr, err := auth.VerifySession(extractCookieToken(cookie, "auth_token"))
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(userIDStr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeActionError maps the lobby error taxonomy onto HTTP statuses.
// Validation rejections carry their message; conflicts tell the actor to
// retry; anything unexpected stays generic.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "lobby changed while handling your action, try again", http.StatusConflict)
	case errors.Is(err, lobby.ErrNotFound):
		http.Error(w, "lobby no longer available", http.StatusNotFound)
	case errors.Is(err, lobby.ErrExternal):
		http.Error(w, "upstream service unavailable", http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
