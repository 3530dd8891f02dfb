package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/storage"
	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Time allowed for the authority to answer a command
	commandTimeout = 5 * time.Second
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	// WebSocket connection
	ws *websocket.Conn

	// Server reference
	server *Server
	logger logrus.FieldLogger

	// Player information (set after authentication)
	player *models.Player

	// Backpack owned by the player's character while joined
	inventory *inventory.Inventory
	invMu     sync.Mutex
	joined    atomic.Bool

	// Buffered channel for outbound messages
	send      chan []byte
	sendMu    sync.RWMutex
	closed    bool
	closeOnce sync.Once

	// Is connection authenticated
	authenticated bool
}

// NewConnection creates a new connection
func NewConnection(ws *websocket.Conn, server *Server) *Connection {
	return &Connection{
		ws:            ws,
		server:        server,
		logger:        server.logger,
		send:          make(chan []byte, 256),
		authenticated: false,
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	if c.player != nil {
		c.logger = c.logger.WithField("player", c.player.ID)
	}

	// Set up connection parameters
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Start read and write pumps
	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the server
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read error.")
			}
			break
		}

		var clientMsg network.ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			c.logger.WithError(err).Debug("Failed to parse client message.")
			c.SendError("invalid_message", "Failed to parse message")
			continue
		}

		c.handleMessage(&clientMsg)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Warn("WebSocket write error.")
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes messages to appropriate handlers
func (c *Connection) handleMessage(msg *network.ClientMessage) {
	c.logger.Debugf("Received message type: %s", msg.Type)

	if err := c.server.schemas.Validate(msg.Type, msg.Payload); err != nil {
		c.logger.WithError(err).Debug("Rejected client payload.")
		c.SendError("invalid_payload", err.Error())
		return
	}

	switch msg.Type {
	case network.MsgTypeJoin:
		c.handleJoin()

	case network.MsgTypeLeave:
		c.handleLeave()

	case network.MsgTypeChat:
		c.handleChat(msg.Payload)

	case network.MsgTypePing:
		c.handlePing()

	case network.MsgTypePosition:
		c.handlePosition(msg.Payload)

	case network.MsgTypeInventoryMove,
		network.MsgTypeInventoryLoot,
		network.MsgTypeInventoryDrop,
		network.MsgTypeInventoryRotate,
		network.MsgTypeInventoryConsume,
		network.MsgTypeInteractBegin,
		network.MsgTypeInteractEnd:
		c.handleCommand(msg.Type, msg.Payload)

	default:
		c.logger.Debugf("Unknown message type: %s", msg.Type)
		c.SendError("unknown_message_type", "Unknown message type")
	}
}

// handleJoin restores the player's backpack and places their character in the world
func (c *Connection) handleJoin() {
	if !c.authenticated || c.player == nil {
		c.SendError("not_authenticated", "Connection not authenticated")
		return
	}
	if !c.joined.CompareAndSwap(false, true) {
		c.SendError("already_joined", "Already joined the session")
		return
	}

	if c.player.CharacterID == "" {
		c.player.CharacterID = c.player.ID
	}
	if c.player.InventoryID == "" {
		c.player.InventoryID = c.player.InventoryKey()
	}

	srv := c.server
	cfg := srv.config
	ctx, cancel := context.WithTimeout(srv.ctx, commandTimeout)
	defer cancel()

	inv := inventory.New(c.player.InventoryID, inventory.OwnerID(c.player.CharacterID),
		cfg.Inventory.Rows, cfg.Inventory.Columns, cfg.Inventory.WeightCapacity,
		inventory.WithRegistry(srv.registry),
		inventory.WithLogger(c.logger),
	)
	if err := srv.store.Load(ctx, inv); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.WithError(err).Warn("Failed to restore inventory, starting empty.")
	}

	c.player.Connected = true
	c.player.ConnectedAt = time.Now()
	c.player.SessionID = srv.session.ID

	if err := srv.session.AddPlayer(c.player, c); err != nil {
		c.logger.WithError(err).Warn("Failed to add player to session.")
		c.joined.Store(false)
		c.SendError("join_failed", "Failed to join session")
		return
	}

	character := world.NewCharacter(world.CharacterID(c.player.CharacterID), c.player.Username, inv)
	snap, err := srv.authority.Join(ctx, character)
	if err != nil {
		c.logger.WithError(err).Warn("Authority rejected join.")
		srv.session.RemovePlayer(c.player.ID)
		c.joined.Store(false)
		c.SendError("join_failed", "Failed to join session")
		return
	}
	c.invMu.Lock()
	c.inventory = inv
	c.invMu.Unlock()

	status := srv.session.GetStatus()
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeWelcome,
		Payload: network.WelcomePayload{
			PlayerID:  c.player.ID,
			Username:  c.player.Username,
			SessionID: srv.session.ID,
			SessionStatus: network.SessionStatus{
				State:       status.State,
				PlayerCount: status.PlayerCount,
				MaxPlayers:  status.MaxPlayers,
				ServerTick:  status.ServerTick,
				Uptime:      status.Uptime,
			},
			InventoryID: inv.ID,
			Catalog:     srv.registry.Export(),
		},
	})
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypeInventorySnapshot, Payload: snap})

	if stash, err := srv.authority.Snapshot(ctx, StashID); err == nil {
		c.SendMessage(&network.ServerMessage{Type: network.MsgTypeInventorySnapshot, Payload: stash})
	}
	if pickups, err := srv.authority.Pickups(ctx); err == nil {
		for _, p := range pickups {
			c.SendMessage(&network.ServerMessage{Type: network.MsgTypePickupSpawned, Payload: pickupSpawned(p)})
		}
	}

	srv.session.BroadcastExcept(c, &network.ServerMessage{
		Type: network.MsgTypePlayerJoined,
		Payload: network.PlayerJoinedPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
			Email:    c.player.Email,
		},
	})

	c.logger.Infof("Player %s joined session %s with %d stacks.", c.player.Username, srv.session.ID, len(snap.Items))
}

// handleLeave removes the character from the world and saves its backpack
func (c *Connection) handleLeave() {
	if c.player == nil || !c.joined.CompareAndSwap(true, false) {
		return
	}
	srv := c.server
	srv.session.RemovePlayer(c.player.ID)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Once the authority lets go of the character, nothing else touches the inventory.
	_, found, err := srv.authority.Leave(ctx, world.CharacterID(c.player.CharacterID))
	c.invMu.Lock()
	inv := c.inventory
	c.inventory = nil
	c.invMu.Unlock()
	switch {
	case err != nil && !errors.Is(err, authority.ErrStopped):
		c.logger.WithError(err).Warn("Authority did not release character; inventory not saved.")
	case inv != nil && (found || err != nil):
		if err := srv.store.Save(ctx, inv); err != nil {
			c.logger.WithError(err).Warn("Failed to save inventory.")
		}
	}

	srv.session.BroadcastMessage(&network.ServerMessage{
		Type: network.MsgTypePlayerLeft,
		Payload: network.PlayerLeftPayload{
			PlayerID: c.player.ID,
			Username: c.player.Username,
		},
	})
}

// handleChat handles chat messages
func (c *Connection) handleChat(payload json.RawMessage) {
	if !c.authenticated || c.player == nil {
		c.SendError("not_authenticated", "Must be authenticated to chat")
		return
	}

	var chatMsg network.ChatPayload
	if err := json.Unmarshal(payload, &chatMsg); err != nil {
		c.SendError("invalid_chat", "Invalid chat message")
		return
	}
	if utf8.RuneCountInString(chatMsg.Message) > c.server.config.Chat.MaxMessageLength {
		c.SendError("invalid_chat", "Chat message too long")
		return
	}

	c.server.session.BroadcastMessage(&network.ServerMessage{
		Type: network.MsgTypeChatBroadcast,
		Payload: network.ChatBroadcastPayload{
			PlayerID:  c.player.ID,
			Username:  c.player.Username,
			Message:   chatMsg.Message,
			Timestamp: time.Now().Unix(),
		},
	})
	c.logger.Debugf("Chat from %s: %s", c.player.Username, chatMsg.Message)
}

// handlePing handles ping requests
func (c *Connection) handlePing() {
	c.SendMessage(&network.ServerMessage{
		Type:    network.MsgTypePong,
		Payload: map[string]interface{}{"timestamp": time.Now().Unix()},
	})
}

// handlePosition moves the character. Only failures are answered; focus
// changes arrive as focus messages.
func (c *Connection) handlePosition(payload json.RawMessage) {
	var p network.PositionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.SendError("invalid_payload", "Invalid position")
		return
	}
	pos := world.Vec3{X: p.X, Y: p.Y, Z: p.Z}
	res, ok := c.submit("", authority.Command{Type: authority.CommandUpdatePosition, Position: &pos})
	if ok && !res.OK() {
		c.sendResult(res)
	}
}

// handleCommand turns an inventory or interaction message into an authority command.
func (c *Connection) handleCommand(msgType string, payload json.RawMessage) {
	cmd, commandID, err := decodeCommand(msgType, payload)
	if err != nil {
		c.SendError("invalid_payload", err.Error())
		return
	}
	if res, ok := c.submit(commandID, cmd); ok {
		c.sendResult(res)
	}
}

// decodeCommand maps a validated client payload onto a command.
func decodeCommand(msgType string, payload json.RawMessage) (authority.Command, string, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	var cmd authority.Command
	switch msgType {
	case network.MsgTypeInventoryMove:
		var p network.InventoryMovePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		cmd = authority.Command{Type: authority.CommandMove, Item: inventory.InstanceID(p.Item), Inventory: p.Inventory, Tile: p.Tile.Tile()}
		return cmd, p.CommandID, nil
	case network.MsgTypeInventoryLoot:
		var p network.InventoryLootPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		cmd = authority.Command{Type: authority.CommandLoot, Item: inventory.InstanceID(p.Item), Tile: p.Tile.Tile()}
		return cmd, p.CommandID, nil
	case network.MsgTypeInventoryDrop:
		var p network.InventoryDropPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		cmd = authority.Command{Type: authority.CommandDrop, Item: inventory.InstanceID(p.Item), Quantity: p.Quantity}
		return cmd, p.CommandID, nil
	case network.MsgTypeInventoryRotate:
		var p network.InventoryRotatePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		cmd = authority.Command{Type: authority.CommandRotate, Item: inventory.InstanceID(p.Item)}
		return cmd, p.CommandID, nil
	case network.MsgTypeInventoryConsume:
		var p network.InventoryConsumePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		cmd = authority.Command{Type: authority.CommandConsume, Item: inventory.InstanceID(p.Item), Quantity: p.Quantity}
		return cmd, p.CommandID, nil
	case network.MsgTypeInteractBegin, network.MsgTypeInteractEnd:
		var p network.InteractPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return cmd, "", err
		}
		switch {
		case msgType == network.MsgTypeInteractEnd:
			cmd.Type = authority.CommandEndInteract
		case p.Pickup != "":
			cmd.Type = authority.CommandTakePickup
			cmd.Pickup = world.PickupID(p.Pickup)
		default:
			cmd.Type = authority.CommandBeginInteract
		}
		return cmd, p.CommandID, nil
	}
	return cmd, "", authority.ErrUnknownCommand
}

// submit sends a command on behalf of the player's character. ok is false
// when the command never reached the authority; the client has been told why.
func (c *Connection) submit(commandID string, cmd authority.Command) (authority.Result, bool) {
	if !c.joined.Load() {
		c.SendError("not_joined", "Join the session first")
		return authority.Result{}, false
	}
	if commandID != "" {
		id, err := ulid.ParseStrict(commandID)
		if err != nil {
			c.SendError("invalid_command_id", "Command ID must be a ULID")
			return authority.Result{}, false
		}
		cmd.ID = id
	}
	cmd.Actor = world.CharacterID(c.player.CharacterID)

	ctx, cancel := context.WithTimeout(c.server.ctx, commandTimeout)
	defer cancel()
	res, err := c.server.authority.Submit(ctx, cmd)
	if err != nil {
		c.logger.WithError(err).Warn("Command was not applied.")
		c.SendError("command_failed", "Server is not accepting commands")
		return authority.Result{}, false
	}
	return res, true
}

func (c *Connection) sendResult(res authority.Result) {
	c.SendMessage(&network.ServerMessage{Type: network.MsgTypeInventoryResult, Payload: resultPayload(res)})
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *network.ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal message.")
		return
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message.")
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.SendMessage(&network.ServerMessage{
		Type: network.MsgTypeError,
		Payload: network.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}

// Close leaves the session and closes the connection. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.handleLeave()

		c.sendMu.Lock()
		c.closed = true
		close(c.send)
		c.sendMu.Unlock()

		c.ws.Close()
	})
}
