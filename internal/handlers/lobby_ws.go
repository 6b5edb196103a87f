// internal/handlers/lobby_ws.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pickuphq/pickup/internal/lobby"
	"github.com/pickuphq/pickup/internal/notify"
)

// Custom WebSocket close codes for the lobby event feed.
const (
	BadSubprotocolError = 3000 // client connected with an unsupported subprotocol
	InvalidLobbyIDError = 3003 // target lobby does not exist or the id is malformed
)

// LobbyEventsHandler serves GET /lobby/ws/{id}: a one-way feed of the
// lobby's committed events, fanned out through redis pub/sub so it works
// regardless of which process committed the transition.
func LobbyEventsHandler(logger *logrus.Logger, svc *lobby.Service, feed *notify.RedisNotifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/lobby/ws/")
		lobbyID, err := uuid.Parse(strings.TrimSuffix(idStr, "/"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}
		if _, err := authenticateRequest(r); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"lobby-events"},
			OriginPatterns: []string{"*"}, // tighten in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "lobby-events" {
			c.Close(BadSubprotocolError, "client must speak the lobby-events subprotocol")
			return
		}

		if _, err := svc.GetLobby(r.Context(), lobbyID); err != nil {
			c.Close(InvalidLobbyIDError, "lobby does not exist")
			return
		}

		// The feed is one-way; CloseRead surfaces client disconnects as
		// context cancellation.
		ctx := c.CloseRead(r.Context())

		sub := feed.Subscribe(ctx, lobbyID)
		defer sub.Close()

		logger.WithFields(logrus.Fields{
			"lobby":  lobbyID,
			"remote": r.RemoteAddr,
		}).Info("lobby event feed connected")

		for {
			select {
			case <-ctx.Done():
				c.Close(websocket.StatusNormalClosure, "bye")
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					c.Close(websocket.StatusGoingAway, "event feed closed")
					return
				}
				if err := c.Write(ctx, websocket.MessageText, []byte(msg.Payload)); err != nil {
					logger.Debugf("lobby %s event feed write failed: %v", lobbyID, err)
					return
				}
			}
		}
	}
}
