// Package network defines the websocket wire protocol.
package network

import (
	"encoding/json"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Message types - Client → Server
const (
	MsgTypeJoin             = "join"
	MsgTypeLeave            = "leave"
	MsgTypeChat             = "chat"
	MsgTypePing             = "ping"
	MsgTypePosition         = "position"
	MsgTypeInventoryMove    = "inventory_move"
	MsgTypeInventoryLoot    = "inventory_loot"
	MsgTypeInventoryDrop    = "inventory_drop"
	MsgTypeInventoryRotate  = "inventory_rotate"
	MsgTypeInventoryConsume = "inventory_consume"
	MsgTypeInteractBegin    = "interact_begin"
	MsgTypeInteractEnd      = "interact_end"
)

// Message types - Server → Client
const (
	MsgTypeWelcome           = "welcome"
	MsgTypePlayerJoined      = "player_joined"
	MsgTypePlayerLeft        = "player_left"
	MsgTypeChatBroadcast     = "chat"
	MsgTypeSessionStatus     = "session_status"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
	MsgTypeInventorySnapshot = "inventory_snapshot"
	MsgTypeInventoryResult   = "inventory_result"
	MsgTypeFocus             = "focus"
	MsgTypePickupSpawned     = "pickup_spawned"
	MsgTypePickupRemoved     = "pickup_removed"
)

// ClientMessage represents any message from client to server
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage represents any message from server to client
type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// --- Client Message Payloads ---

// JoinPayload is sent by client to join the session
type JoinPayload struct {
	// Currently empty - join happens automatically after auth
}

// ChatPayload is sent by client to send a chat message
type ChatPayload struct {
	Message string `json:"message" jsonschema:"required,minLength=1,maxLength=500"`
}

// TilePayload addresses a grid cell.
type TilePayload struct {
	X int `json:"x" jsonschema:"required,minimum=0"`
	Y int `json:"y" jsonschema:"required,minimum=0"`
}

// Tile converts the payload to an inventory tile.
func (t *TilePayload) Tile() *inventory.Tile {
	if t == nil {
		return nil
	}
	return &inventory.Tile{X: t.X, Y: t.Y}
}

// PositionPayload reports the player's world position.
type PositionPayload struct {
	X float64 `json:"x" jsonschema:"required"`
	Y float64 `json:"y" jsonschema:"required"`
	Z float64 `json:"z"`
}

// InventoryMovePayload moves a stack to a tile, optionally into another inventory.
// CommandID lets clients retry without the move being applied twice.
type InventoryMovePayload struct {
	CommandID string      `json:"command_id,omitempty"`
	Item      string      `json:"item" jsonschema:"required,minLength=1"`
	Inventory string      `json:"inventory,omitempty"`
	Tile      TilePayload `json:"tile" jsonschema:"required"`
}

// InventoryLootPayload pulls a stack from a container into the player's inventory.
type InventoryLootPayload struct {
	CommandID string       `json:"command_id,omitempty"`
	Item      string       `json:"item" jsonschema:"required,minLength=1"`
	Tile      *TilePayload `json:"tile,omitempty"`
}

// InventoryDropPayload drops units of a stack into the world.
type InventoryDropPayload struct {
	CommandID string `json:"command_id,omitempty"`
	Item      string `json:"item" jsonschema:"required,minLength=1"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"minimum=0"`
}

// InventoryRotatePayload flips the pending rotation of a stack.
type InventoryRotatePayload struct {
	CommandID string `json:"command_id,omitempty"`
	Item      string `json:"item" jsonschema:"required,minLength=1"`
}

// InventoryConsumePayload uses up units of a stack.
type InventoryConsumePayload struct {
	CommandID string `json:"command_id,omitempty"`
	Item      string `json:"item" jsonschema:"required,minLength=1"`
	Quantity  int    `json:"quantity,omitempty" jsonschema:"minimum=0"`
}

// InteractPayload begins or ends an interaction. A pickup ID takes that
// pickup directly instead of the focused one.
type InteractPayload struct {
	CommandID string `json:"command_id,omitempty"`
	Pickup    string `json:"pickup,omitempty"`
}

// --- Server Message Payloads ---

// WelcomePayload is sent to client after successful connection
type WelcomePayload struct {
	PlayerID      string           `json:"player_id"`
	Username      string           `json:"username"`
	SessionID     string           `json:"session_id"`
	SessionStatus SessionStatus    `json:"session_status"`
	InventoryID   string           `json:"inventory_id"`
	Catalog       []inventory.Kind `json:"catalog"`
}

// PlayerJoinedPayload notifies clients when a player joins
type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// PlayerLeftPayload notifies clients when a player leaves
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
	Username string `json:"username"`
}

// ChatBroadcastPayload broadcasts a chat message to all clients
type ChatBroadcastPayload struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp
}

// SessionStatus represents the current session state
type SessionStatus struct {
	State       string `json:"state"`
	PlayerCount int    `json:"player_count"`
	MaxPlayers  int    `json:"max_players"`
	ServerTick  int64  `json:"server_tick"`
	Uptime      int64  `json:"uptime"`
}

// InventoryResultPayload reports the outcome of an inventory or interaction request.
type InventoryResultPayload struct {
	CommandID string `json:"command_id"`
	Command   string `json:"command"`
	Outcome   string `json:"outcome"`
	Requested int    `json:"requested"`
	Given     int    `json:"given"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Pickup    string `json:"pickup,omitempty"`
}

// FocusPayload tells a player which pickup they are looking at. Empty
// PickupID clears the focus.
type FocusPayload struct {
	PickupID string  `json:"pickup_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Action   string  `json:"action,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
	Time     float64 `json:"time,omitempty"` // seconds
}

// PickupSpawnedPayload announces an item lying in the world.
type PickupSpawnedPayload struct {
	PickupID string  `json:"pickup_id"`
	Kind     string  `json:"kind"`
	Quantity int     `json:"quantity"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
}

// PickupRemovedPayload announces that a pickup is gone.
type PickupRemovedPayload struct {
	PickupID string `json:"pickup_id"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
