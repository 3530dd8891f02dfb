package authority

import (
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// CommandType names a mutation request.
type CommandType string

const (
	CommandGrant          CommandType = "grant"
	CommandMove           CommandType = "move"
	CommandLoot           CommandType = "loot"
	CommandDrop           CommandType = "drop"
	CommandRotate         CommandType = "rotate"
	CommandConsume        CommandType = "consume"
	CommandTakePickup     CommandType = "take_pickup"
	CommandBeginInteract  CommandType = "begin_interact"
	CommandEndInteract    CommandType = "end_interact"
	CommandUpdatePosition CommandType = "update_position"
)

var (
	ErrUnknownCommand   = errors.New("authority: unknown command")
	ErrUnknownInventory = errors.New("authority: unknown inventory")
	ErrUnknownItem      = errors.New("authority: unknown item")
	ErrUnknownCharacter = errors.New("authority: unknown character")
	ErrUnknownPickup    = errors.New("authority: pickup not reachable")
	ErrForbidden        = errors.New("authority: actor may not touch this inventory")
	ErrMissingTile      = errors.New("authority: target tile required")
)

// Command is a request to mutate authoritative state. IDs are ULIDs so they
// sort by creation time; a repeated ID is answered from cache.
type Command struct {
	ID        ulid.ULID            `json:"id"`
	Type      CommandType          `json:"type"`
	Actor     world.CharacterID    `json:"actor"`
	Inventory string               `json:"inventory,omitempty"`
	Item      inventory.InstanceID `json:"item,omitempty"`
	Kind      inventory.KindID     `json:"kind,omitempty"`
	Quantity  int                  `json:"quantity,omitempty"`
	Tile      *inventory.Tile      `json:"tile,omitempty"`
	Pickup    world.PickupID       `json:"pickup,omitempty"`
	Position  *world.Vec3          `json:"position,omitempty"`
}

// NewCommandID returns a fresh, monotonically sortable command ID.
func NewCommandID() ulid.ULID {
	return ulid.Make()
}

// Result reports what a command did.
type Result struct {
	CommandID ulid.ULID            `json:"commandId"`
	Type      CommandType          `json:"type"`
	Actor     world.CharacterID    `json:"actor,omitempty"`
	Duplicate bool                 `json:"duplicate,omitempty"`
	Outcome   inventory.AddOutcome `json:"outcome"`
	Requested int                  `json:"requested,omitempty"`
	Given     int                  `json:"given,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Error     string               `json:"error,omitempty"`
	Inventory string               `json:"inventory,omitempty"`
	Kind      inventory.KindID     `json:"kind,omitempty"`
	Pickup    world.PickupID       `json:"pickup,omitempty"`
	Err       error                `json:"-"`
}

// OK reports whether the command went through without error.
func (r Result) OK() bool { return r.Err == nil }

func fromAdd(res inventory.AddResult) Result {
	out := Result{
		Outcome:   res.Outcome,
		Requested: res.Requested,
		Given:     res.Given,
		Reason:    res.Reason,
		Err:       res.Err,
	}
	if res.Item != nil {
		out.Kind = res.Item.KindID()
	}
	return out
}

func failed(err error) Result {
	return Result{Outcome: inventory.NoneAdded, Err: err}
}
