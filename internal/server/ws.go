package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	apperrors "github.com/louisbranch/dropfour/internal/errors"
	"github.com/louisbranch/dropfour/internal/game/event"
	"github.com/louisbranch/dropfour/internal/id"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The game clients are served from arbitrary origins during
	// development; access control happens at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the wire frame for both directions: an event name plus an
// event-specific payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outEnvelope mirrors envelope for writes without forcing payloads
// through an intermediate marshal.
type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound payloads.
type findMatchRequest struct {
	Username string `json:"username"`
}

type makeMoveRequest struct {
	GameID string `json:"gameId"`
	Column int    `json:"column"`
}

type rejoinGameRequest struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

// wsConn adapts one websocket to the game core's connection interface.
// Writes are serialized; gorilla permits only one concurrent writer.
type wsConn struct {
	id   string
	mu   sync.Mutex
	sock *websocket.Conn
}

// Key returns the connection id minted at upgrade time.
func (c *wsConn) Key() string { return c.id }

// Send writes one event frame.
func (c *wsConn) Send(eventName string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock.WriteJSON(outEnvelope{Event: eventName, Data: payload})
}

func (c *wsConn) sendError(message string) {
	if err := c.Send(event.Error, event.ErrorPayload{Message: message}); err != nil {
		log.Printf("send error frame failed conn=%s err=%v", c.id, err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed err=%v", err)
		return
	}

	connID, err := id.NewID()
	if err != nil {
		log.Printf("mint connection id failed err=%v", err)
		_ = sock.Close()
		return
	}
	conn := &wsConn{id: connID, sock: sock}
	log.Printf("client connected conn=%s", connID)

	if err := conn.Send(event.Connected, event.ConnectedPayload{
		Message:      "connected to game server",
		ConnectionID: connID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		log.Printf("greet failed conn=%s err=%v", connID, err)
		_ = sock.Close()
		return
	}

	ctx := r.Context()
	defer func() {
		s.app.ConnectionClosed(ctx, conn.Key())
		_ = sock.Close()
		log.Printf("client disconnected conn=%s", connID)
	}()

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read failed conn=%s err=%v", connID, err)
			}
			return
		}

		var frame envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			conn.sendError("malformed message")
			continue
		}

		if err := s.dispatch(r, conn, frame); err != nil {
			conn.sendError(apperrors.UserMessage(err))
		}
	}
}

// dispatch routes one inbound frame to the app.
func (s *Server) dispatch(r *http.Request, conn *wsConn, frame envelope) error {
	ctx := r.Context()

	switch frame.Event {
	case "find_match":
		var req findMatchRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return apperrors.New(apperrors.CodeUsernameInvalid, "malformed find_match payload")
		}
		return s.app.FindMatch(ctx, conn, req.Username)

	case "make_move":
		var req makeMoveRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return apperrors.New(apperrors.CodeColumnInvalid, "malformed make_move payload")
		}
		return s.app.MakeMove(ctx, conn.Key(), req.GameID, req.Column)

	case "rejoin_game":
		var req rejoinGameRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			return apperrors.New(apperrors.CodeGameIDInvalid, "malformed rejoin_game payload")
		}
		return s.app.RejoinGame(ctx, conn, req.GameID, req.PlayerID)

	default:
		return apperrors.New(apperrors.CodeUnknown, "unknown event")
	}
}
