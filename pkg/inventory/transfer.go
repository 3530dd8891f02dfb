package inventory

// Loot moves item out of its current inventory into target, trying hint first.
// Whatever target accepted is consumed from the source afterwards, so units are
// never duplicated or lost.
func Loot(item *Item, target *Inventory, hint *Tile) AddResult {
	if item == nil || target == nil {
		return addedNone(0, ErrInvalidReference, "")
	}
	source := item.owner
	if source == nil || source == target {
		return addedNone(item.quantity, ErrInvalidReference, "item must come from another inventory")
	}
	if !source.HasAuthority() {
		return addedNone(item.quantity, ErrNotAuthoritative, "")
	}
	res := target.TryAddItem(item, hint)
	if res.Given > 0 {
		source.ConsumeItem(item, res.Given)
	}
	return res
}

// Move places item at tile in target, moving within one inventory or
// between two.
func Move(item *Item, target *Inventory, tile Tile) AddResult {
	if item == nil || target == nil {
		return addedNone(0, ErrInvalidReference, "")
	}
	if item.owner == target {
		return target.TryMoveItem(item, tile)
	}
	return Loot(item, target, &tile)
}

// Drop takes up to quantity units out of the item's inventory and returns them
// as a detached stack. Dropping the whole stack detaches the same instance.
func Drop(item *Item, quantity int) (*Item, int) {
	if item == nil || item.owner == nil || !item.owner.HasAuthority() {
		return nil, 0
	}
	owner := item.owner
	if quantity <= 0 || quantity > item.quantity {
		quantity = item.quantity
	}
	if quantity == item.quantity {
		if !owner.RemoveItem(item) {
			return nil, 0
		}
		return item, quantity
	}
	dropped := NewItem(item.kind, quantity)
	dropped.rotated = item.rotated
	dropped.newRotated = item.rotated
	owner.ConsumeItem(item, quantity)
	return dropped, quantity
}
