package server

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

// Session represents a game session
type Session struct {
	ID        string
	CreatedAt time.Time

	// Player management
	players     map[string]*models.Player // playerID -> Player
	connections map[string]*Connection    // playerID -> Connection
	mu          sync.RWMutex

	status SessionStatus

	// Configuration
	config *config.Config
	logger logrus.FieldLogger
}

// SessionStatus represents the current state of the session
type SessionStatus struct {
	State       string `json:"state"` // "waiting", "running", "paused"
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	ServerTick  int64  `json:"server_tick"`
	Uptime      int64  `json:"uptime"` // seconds
}

// NewSession creates a new game session
func NewSession(id string, cfg *config.Config, logger logrus.FieldLogger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	session := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		players:     make(map[string]*models.Player),
		connections: make(map[string]*Connection),
		config:      cfg,
		logger:      logger.WithField("session", id),
		status: SessionStatus{
			State:      "waiting",
			MaxPlayers: cfg.Session.MaxPlayers,
		},
	}

	session.logger.Info("Session created.")
	return session
}

// AddPlayer adds a player to the session
func (s *Session) AddPlayer(player *models.Player, conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.players[player.ID]; !exists && len(s.players) >= s.status.MaxPlayers {
		return ErrSessionFull
	}
	s.players[player.ID] = player
	s.connections[player.ID] = conn
	s.status.PlayerCount = len(s.players)
	s.status.State = "running"

	s.logger.Infof("Player %s (%s) joined.", player.Username, player.ID)
	return nil
}

// RemovePlayer removes a player from the session
func (s *Session) RemovePlayer(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if player, exists := s.players[playerID]; exists {
		s.logger.Infof("Player %s (%s) left.", player.Username, playerID)
		delete(s.players, playerID)
		delete(s.connections, playerID)
		s.status.PlayerCount = len(s.players)
		if s.status.PlayerCount == 0 {
			s.status.State = "waiting"
		}
	}
}

// GetPlayer retrieves a player by ID
func (s *Session) GetPlayer(playerID string) (*models.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	player, exists := s.players[playerID]
	return player, exists
}

// GetPlayers returns all players in the session
func (s *Session) GetPlayers() []*models.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*models.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, player)
	}
	return players
}

// BroadcastMessage sends a message to all connected players
func (s *Session) BroadcastMessage(msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		conn.SendMessage(msg)
	}
}

// BroadcastExcept sends a message to all players except the specified connection
func (s *Session) BroadcastExcept(exclude *Connection, msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		if conn != exclude {
			conn.SendMessage(msg)
		}
	}
}

// SendTo sends a message to one player. It reports whether the player is connected.
func (s *Session) SendTo(playerID string, msg *network.ServerMessage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[playerID]
	if !ok {
		return false
	}
	conn.SendMessage(msg)
	return true
}

// GetStatus returns the current session status
func (s *Session) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	status.Uptime = int64(time.Since(s.CreatedAt).Seconds())
	return status
}

// InventoryChanged pushes a snapshot to the owner of the inventory, or to
// everyone for shared containers.
func (s *Session) InventoryChanged(snap inventory.Snapshot) {
	msg := &network.ServerMessage{Type: network.MsgTypeInventorySnapshot, Payload: snap}
	if snap.Owner == "" {
		s.BroadcastMessage(msg)
		return
	}
	s.SendTo(string(snap.Owner), msg)
}

// WorldChanged forwards pickup and focus changes.
func (s *Session) WorldChanged(e world.Event) {
	switch e.Type {
	case world.EventPickupSpawned:
		s.BroadcastMessage(&network.ServerMessage{
			Type:    network.MsgTypePickupSpawned,
			Payload: pickupSpawned(authority.ViewPickup(e.Pickup)),
		})
	case world.EventPickupRemoved:
		s.BroadcastMessage(&network.ServerMessage{
			Type:    network.MsgTypePickupRemoved,
			Payload: network.PickupRemovedPayload{PickupID: string(e.Pickup.ID)},
		})
	case world.EventFocusChanged:
		if e.Character == nil {
			return
		}
		s.SendTo(string(e.Character.ID), &network.ServerMessage{
			Type:    network.MsgTypeFocus,
			Payload: focusPayload(e.Pickup),
		})
	}
}

// InteractionCompleted reports a finished timed interaction to its character.
func (s *Session) InteractionCompleted(actor world.CharacterID, r authority.Result) {
	s.SendTo(string(actor), &network.ServerMessage{
		Type:    network.MsgTypeInventoryResult,
		Payload: resultPayload(r),
	})
}

func pickupSpawned(v authority.PickupView) network.PickupSpawnedPayload {
	return network.PickupSpawnedPayload{
		PickupID: string(v.ID),
		Kind:     string(v.Kind),
		Quantity: v.Quantity,
		X:        v.Position.X,
		Y:        v.Position.Y,
		Z:        v.Position.Z,
	}
}

func focusPayload(p *world.Pickup) network.FocusPayload {
	if p == nil {
		return network.FocusPayload{}
	}
	out := network.FocusPayload{PickupID: string(p.ID)}
	if p.Item != nil {
		out.Quantity = p.Item.Quantity()
	}
	if p.Interactable != nil {
		out.Name = p.Interactable.NameText
		out.Action = p.Interactable.ActionText
		out.Time = p.Interactable.Time.Seconds()
	}
	return out
}

func resultPayload(r authority.Result) network.InventoryResultPayload {
	return network.InventoryResultPayload{
		CommandID: r.CommandID.String(),
		Command:   string(r.Type),
		Outcome:   r.Outcome.String(),
		Requested: r.Requested,
		Given:     r.Given,
		Reason:    r.Reason,
		Error:     r.Error,
		Duplicate: r.Duplicate,
		Pickup:    string(r.Pickup),
	}
}
