package world

import (
	"github.com/google/uuid"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// PickupID identifies an item lying in the world.
type PickupID string

// Pickup is a detached item placed in the world that characters can take.
type Pickup struct {
	ID           PickupID
	Item         *inventory.Item
	Position     Vec3
	Interactable *Interactable
}

// NewPickup wraps a detached item. The interactable is named after the item.
func NewPickup(item *inventory.Item, pos Vec3) *Pickup {
	name := "Pickup"
	if item != nil && item.Kind() != nil {
		name = item.Kind().Name()
	}
	return &Pickup{
		ID:           PickupID(uuid.New().String()),
		Item:         item,
		Position:     pos,
		Interactable: NewInteractable(name, "Take"),
	}
}

// Take moves as much of the pickup into inv as fits. It reports whether the
// pickup is now empty and should be removed from the world.
func (p *Pickup) Take(inv *inventory.Inventory) (inventory.AddResult, bool) {
	if p.Item == nil || inv == nil {
		return inventory.AddResult{Outcome: inventory.NoneAdded, Err: inventory.ErrInvalidReference}, false
	}
	res := inv.TryAddItem(p.Item, nil)
	if res.Given >= p.Item.Quantity() {
		return res, true
	}
	if res.Given > 0 {
		p.Item.SetQuantity(p.Item.Quantity() - res.Given)
	}
	return res, false
}
