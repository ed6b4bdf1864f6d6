package domain

import (
	"sync"
	"time"
)

// BotName is the display name used for automated opponents.
const BotName = "Bot"

// Connection is an opaque handle to a participant's live transport
// connection. It is replaced on every reconnect; the zero participant
// state (a bot, or a disconnected human) carries none.
type Connection interface {
	// Key returns a stable identifier for this live connection. It is the
	// matchmaking queue key and the handle used to route connection-closed
	// signals; a reconnect produces a new key.
	Key() string
	// Send delivers one outbound event to the participant.
	Send(event string, payload any) error
}

// Participant is a human or bot occupant of a session slot. Identity is
// stable for the participant's lifetime; the connection reference mutates
// on every reconnect.
type Participant struct {
	ID       string
	Username string
	IsBot    bool

	mu         sync.Mutex
	conn       Connection
	connected  bool
	lastActive time.Time
}

// NewParticipant creates a connected human participant.
func NewParticipant(id, username string, conn Connection) *Participant {
	return &Participant{
		ID:         id,
		Username:   username,
		conn:       conn,
		connected:  conn != nil,
		lastActive: time.Now().UTC(),
	}
}

// NewBot creates a bot participant. Bots have no connection.
func NewBot(id string) *Participant {
	return &Participant{ID: id, Username: BotName, IsBot: true}
}

// Conn returns the current connection handle, which may be nil.
func (p *Participant) Conn() Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// ConnKey returns the current connection's key, or "" when disconnected.
func (p *Participant) ConnKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ""
	}
	return p.conn.Key()
}

// SetConn replaces the connection handle after a reconnect and marks the
// participant connected.
func (p *Participant) SetConn(conn Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = conn
	p.connected = conn != nil
	p.lastActive = time.Now().UTC()
}

// SetConnected updates the connectivity flag without touching the stale
// connection handle, so a later reconnect can be validated against it.
func (p *Participant) SetConnected(connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = connected
	p.lastActive = time.Now().UTC()
}

// Connected reports whether the participant currently has a live connection.
func (p *Participant) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Send delivers an event to the participant. It is a no-op for bots and
// for participants without a live connection.
func (p *Participant) Send(event string, payload any) error {
	p.mu.Lock()
	conn := p.conn
	bot := p.IsBot
	p.mu.Unlock()
	if bot || conn == nil {
		return nil
	}
	return conn.Send(event, payload)
}
