package world

import (
	"time"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// CharacterID identifies a character in the world.
type CharacterID string

// Character is a participant that owns an inventory and interacts with pickups.
type Character struct {
	ID        CharacterID
	Name      string
	Position  Vec3
	Inventory *inventory.Inventory
	// CanInteract disables focus and interaction when false.
	CanInteract bool

	focus        *Pickup
	interactHeld bool
	deadline     time.Time
}

// NewCharacter creates a character able to interact.
func NewCharacter(id CharacterID, name string, inv *inventory.Inventory) *Character {
	return &Character{ID: id, Name: name, Inventory: inv, CanInteract: true}
}

// Focus returns the pickup the character is looking at.
func (c *Character) Focus() *Pickup { return c.focus }

// IsInteracting reports whether a timed interaction is running.
func (c *Character) IsInteracting() bool { return !c.deadline.IsZero() }

// RemainingInteractTime returns how long until the running interaction completes.
func (c *Character) RemainingInteractTime(now time.Time) time.Duration {
	if c.deadline.IsZero() {
		return 0
	}
	if d := c.deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}
