package inventory

import (
	"github.com/google/uuid"
)

// Item is a stack of one kind living in at most one inventory. The inventory
// references it from every cell of its footprint.
type Item struct {
	id         InstanceID
	kind       *Kind
	quantity   int
	rotated    bool
	newRotated bool

	owner    *Inventory
	revision uint64
}

// NewItem creates a detached stack of the given kind. Quantity is clamped to
// [1, kind.StackLimit()].
func NewItem(kind *Kind, quantity int) *Item {
	it := &Item{
		id:   InstanceID(uuid.New().String()),
		kind: kind,
	}
	if quantity < 1 {
		quantity = 1
	}
	it.quantity = clampQuantity(kind, quantity)
	return it
}

func newItemWithID(id InstanceID, kind *Kind, quantity int) *Item {
	return &Item{id: id, kind: kind, quantity: clampQuantity(kind, quantity)}
}

func clampQuantity(kind *Kind, q int) int {
	if q < 0 {
		return 0
	}
	if limit := kind.StackLimit(); q > limit {
		return limit
	}
	return q
}

// ID returns the instance identifier.
func (it *Item) ID() InstanceID { return it.id }

// Kind returns the item kind.
func (it *Item) Kind() *Kind { return it.kind }

// KindID returns the identifier of the item kind.
func (it *Item) KindID() KindID {
	if it.kind == nil {
		return ""
	}
	return it.kind.ID
}

// Quantity returns the number of units in the stack.
func (it *Item) Quantity() int { return it.quantity }

// SetQuantity sets the stack size, clamped to [0, StackLimit].
func (it *Item) SetQuantity(q int) {
	q = clampQuantity(it.kind, q)
	if q == it.quantity {
		return
	}
	it.quantity = q
	it.markDirty()
}

// StackWeight returns the weight of the whole stack.
func (it *Item) StackWeight() float64 {
	if it.kind == nil {
		return 0
	}
	return float64(it.quantity) * it.kind.Weight
}

// IsStackFull reports whether the stack reached its limit.
func (it *Item) IsStackFull() bool {
	return it.quantity >= it.kind.StackLimit()
}

// Stackable reports whether units of this item merge into one stack.
func (it *Item) Stackable() bool {
	return it.kind != nil && it.kind.Stackable
}

// SameKind reports whether both stacks share a kind.
func (it *Item) SameKind(other *Item) bool {
	if it == nil || other == nil {
		return false
	}
	return it.KindID() == other.KindID()
}

// Dimensions returns the footprint using the placed rotation when current is
// true, otherwise the pending rotation.
func (it *Item) Dimensions(current bool) Size {
	var size Size
	if it.kind != nil {
		size = it.kind.Size.normalized()
	} else {
		size = Size{Width: 1, Height: 1}
	}
	r := it.newRotated
	if current {
		r = it.rotated
	}
	if r {
		return size.Rotated()
	}
	return size
}

// Rotated reports the rotation the item is placed with.
func (it *Item) Rotated() bool { return it.rotated }

// NewRotated reports the pending rotation used for the next placement.
func (it *Item) NewRotated() bool { return it.newRotated }

// Rotate flips the pending rotation.
func (it *Item) Rotate() {
	it.newRotated = !it.newRotated
	it.markDirty()
}

// SetRotated sets both placed and pending rotation.
func (it *Item) SetRotated(v bool) {
	if v == it.rotated && v == it.newRotated {
		return
	}
	it.rotated = v
	it.newRotated = v
	it.markDirty()
}

// Owner returns the inventory holding this item, or nil when detached.
func (it *Item) Owner() *Inventory { return it.owner }

// Revision increments every time the stack changes.
func (it *Item) Revision() uint64 { return it.revision }

func (it *Item) markDirty() {
	it.revision++
	if it.owner != nil {
		it.owner.revision++
	}
}
