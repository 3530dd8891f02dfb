package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ItemSnapshot captures one stack and its anchor tile.
type ItemSnapshot struct {
	ID         InstanceID `json:"id"`
	Kind       KindID     `json:"kind"`
	Qty        int        `json:"qty"`
	Rotated    bool       `json:"rotated,omitempty"`
	NewRotated bool       `json:"newRotated,omitempty"`
	Position   Tile       `json:"position"`
}

// Snapshot is the full replicated state of an inventory. Replicas apply
// snapshots in revision order.
type Snapshot struct {
	ID             string         `json:"id"`
	Owner          OwnerID        `json:"owner,omitempty"`
	Revision       uint64         `json:"revision"`
	Rows           int            `json:"rows"`
	Columns        int            `json:"columns"`
	WeightCapacity float64        `json:"weightCapacity"`
	Items          []ItemSnapshot `json:"items"`
}

// StorageItemSnapshot is ItemSnapshot with the kind replaced by its numeric handle.
type StorageItemSnapshot struct {
	ID         InstanceID `json:"i"`
	Kind       RegistryID `json:"k"`
	Qty        int        `json:"q"`
	Rotated    bool       `json:"r,omitempty"`
	NewRotated bool       `json:"n,omitempty"`
	Position   Tile       `json:"p"`
}

// StorageSnapshot is a compact representation for database storage.
type StorageSnapshot struct {
	ID             string                `json:"id"`
	Owner          OwnerID               `json:"owner,omitempty"`
	Revision       uint64                `json:"rev"`
	Rows           int                   `json:"rows"`
	Columns        int                   `json:"cols"`
	WeightCapacity float64               `json:"wcap"`
	Items          []StorageItemSnapshot `json:"items"`
}

// Snapshot captures the current state. Items are ordered by anchor index.
func (inv *Inventory) Snapshot() Snapshot {
	s := Snapshot{
		ID:             inv.ID,
		Owner:          inv.Owner,
		Revision:       inv.revision,
		Rows:           inv.grid.Rows,
		Columns:        inv.grid.Columns,
		WeightCapacity: inv.weightCapacity,
		Items:          make([]ItemSnapshot, 0),
	}
	for it, tile := range inv.ItemsMap() {
		s.Items = append(s.Items, ItemSnapshot{
			ID:         it.id,
			Kind:       it.KindID(),
			Qty:        it.quantity,
			Rotated:    it.rotated,
			NewRotated: it.newRotated,
			Position:   tile,
		})
	}
	sort.Slice(s.Items, func(i, j int) bool {
		a, b := s.Items[i].Position, s.Items[j].Position
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return s
}

// Serialize encodes the inventory to JSON.
func (inv *Inventory) Serialize() ([]byte, error) {
	return json.Marshal(inv.Snapshot())
}

// Deserialize replaces the inventory with data from JSON. A registry must be
// attached to resolve kinds.
func (inv *Inventory) Deserialize(b []byte) error {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return inv.restore(s)
}

// SerializeForStorage encodes the inventory using numeric RegistryIDs instead
// of string KindIDs. Requires a registry.
func (inv *Inventory) SerializeForStorage() ([]byte, error) {
	if inv.registry == nil {
		return nil, errors.New("registry required for storage serialization")
	}
	s := inv.Snapshot()
	ss := StorageSnapshot{
		ID:             s.ID,
		Owner:          s.Owner,
		Revision:       s.Revision,
		Rows:           s.Rows,
		Columns:        s.Columns,
		WeightCapacity: s.WeightCapacity,
		Items:          make([]StorageItemSnapshot, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		regID, ok := inv.registry.GetRegistryID(it.Kind)
		if !ok {
			return nil, fmt.Errorf("kind not found in registry: %s", it.Kind)
		}
		ss.Items = append(ss.Items, StorageItemSnapshot{
			ID:         it.ID,
			Kind:       regID,
			Qty:        it.Qty,
			Rotated:    it.Rotated,
			NewRotated: it.NewRotated,
			Position:   it.Position,
		})
	}
	return json.Marshal(ss)
}

// DeserializeFromStorage replaces the inventory with data produced by
// SerializeForStorage.
func (inv *Inventory) DeserializeFromStorage(b []byte) error {
	if inv.registry == nil {
		return errors.New("registry required for storage deserialization")
	}
	var ss StorageSnapshot
	if err := json.Unmarshal(b, &ss); err != nil {
		return err
	}
	s := Snapshot{
		ID:             ss.ID,
		Owner:          ss.Owner,
		Revision:       ss.Revision,
		Rows:           ss.Rows,
		Columns:        ss.Columns,
		WeightCapacity: ss.WeightCapacity,
		Items:          make([]ItemSnapshot, 0, len(ss.Items)),
	}
	for _, it := range ss.Items {
		k, ok := inv.registry.LookupByRegistryID(it.Kind)
		if !ok {
			return fmt.Errorf("registry id not found: %d", it.Kind)
		}
		s.Items = append(s.Items, ItemSnapshot{
			ID:         it.ID,
			Kind:       k.ID,
			Qty:        it.Qty,
			Rotated:    it.Rotated,
			NewRotated: it.NewRotated,
			Position:   it.Position,
		})
	}
	return inv.restore(s)
}

// ApplySnapshot mirrors authoritative state onto this inventory. Snapshots
// whose revision is not newer than the local one are ignored, so duplicates
// and late arrivals are harmless. Existing stacks are reused by instance ID.
func (inv *Inventory) ApplySnapshot(s Snapshot) (bool, error) {
	if s.Revision <= inv.revision {
		return false, nil
	}
	if err := inv.restore(s); err != nil {
		return false, err
	}
	return true, nil
}

// restore validates s and swaps it in. The inventory is left untouched on error.
// A sized inventory keeps its grid and rejects snapshots of other dimensions.
func (inv *Inventory) restore(s Snapshot) error {
	if inv.registry == nil {
		return errors.New("registry required to resolve item kinds")
	}
	grid := inv.grid
	if !inv.sized() {
		grid = Grid{Rows: s.Rows, Columns: s.Columns}
	} else if s.Rows != grid.Rows || s.Columns != grid.Columns {
		return fmt.Errorf("%w: snapshot grid %dx%d does not match %dx%d",
			ErrOutOfBounds, s.Rows, s.Columns, grid.Rows, grid.Columns)
	}
	slots := make([]*Item, grid.Capacity())

	stacks := inv.Stacks()
	existing := make(map[InstanceID]*Item, len(stacks))
	for _, it := range stacks {
		existing[it.id] = it
	}

	type change struct {
		item                      *Item
		qty                       int
		rotated, newRotated, keep bool
	}
	changes := make([]change, 0, len(s.Items))
	seen := make(map[InstanceID]bool, len(s.Items))
	reused := make(map[*Item]bool)
	for _, is := range s.Items {
		if is.ID == "" || seen[is.ID] {
			return fmt.Errorf("%w: duplicate or empty instance id %q", ErrInvalidReference, is.ID)
		}
		seen[is.ID] = true
		if is.Qty < 1 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidReference, is.ID, is.Qty)
		}
		k, ok := inv.registry.Lookup(is.Kind)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownKind, is.Kind)
		}
		if !grid.IsValid(is.Position) {
			return fmt.Errorf("%w: item %s at (%d,%d)", ErrOutOfBounds, is.ID, is.Position.X, is.Position.Y)
		}
		it, keep := existing[is.ID]
		if !keep || it.kind != k {
			it = newItemWithID(is.ID, k, is.Qty)
			keep = false
		}
		if keep {
			reused[it] = true
		}
		size := k.Size.normalized()
		if is.Rotated {
			size = size.Rotated()
		}
		cells, fits := grid.footprint(grid.TileToIndex(is.Position), size)
		if !fits {
			return fmt.Errorf("%w: item %s does not fit at (%d,%d)", ErrOutOfBounds, is.ID, is.Position.X, is.Position.Y)
		}
		for _, c := range cells {
			if slots[c] != nil {
				return fmt.Errorf("%w: item %s overlaps %s", ErrInvalidReference, is.ID, slots[c].id)
			}
			slots[c] = it
		}
		changes = append(changes, change{item: it, qty: is.Qty, rotated: is.Rotated, newRotated: is.NewRotated, keep: keep})
	}

	start := inv.revision
	defer inv.flush(start)

	for _, it := range stacks {
		if reused[it] {
			continue
		}
		it.owner = nil
		inv.emit(EventItemRemoved, it)
	}

	inv.ID = s.ID
	inv.Owner = s.Owner
	inv.grid = grid
	inv.weightCapacity = s.WeightCapacity
	inv.slots = slots
	for _, ch := range changes {
		it := ch.item
		it.quantity = clampQuantity(it.kind, ch.qty)
		it.rotated = ch.rotated
		it.newRotated = ch.newRotated
		it.revision++
		it.owner = inv
		if !ch.keep {
			inv.emit(EventItemAdded, it)
		}
	}
	if s.Revision > start {
		inv.revision = s.Revision
	} else {
		inv.revision = start + 1
	}
	return nil
}
