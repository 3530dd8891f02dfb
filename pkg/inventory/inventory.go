package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zyedidia/generic/mapset"
)

// Option configures inventory construction.
type Option func(*Inventory)

// WithRegistry attaches a kind registry used to resolve item kinds during
// grants and deserialization.
func WithRegistry(reg *Registry) Option {
	return func(inv *Inventory) {
		inv.registry = reg
	}
}

// WithLogger sets the logger used for placement tracing and consistency warnings.
func WithLogger(l logrus.FieldLogger) Option {
	return func(inv *Inventory) {
		if l != nil {
			inv.logger = l
		}
	}
}

// WithAuthority decides whether this instance may mutate. Defaults to Authoritative.
func WithAuthority(a Authority) Option {
	return func(inv *Inventory) {
		if a != nil {
			inv.authority = a
		}
	}
}

// WithNotifier forwards every event to n in addition to subscribed observers.
func WithNotifier(n Notifier) Option {
	return func(inv *Inventory) {
		inv.notifier = n
	}
}

// Inventory is a rows x columns grid of slots. Every slot holds nil or a
// pointer to the stack whose footprint covers it.
type Inventory struct {
	ID    string
	Owner OwnerID

	grid           Grid
	weightCapacity float64
	slots          []*Item

	registry  *Registry
	authority Authority
	observers *Observers
	notifier  Notifier
	logger    logrus.FieldLogger

	// revision increments on every change to the grid or a contained stack.
	revision uint64
	pending  []Event
	now      func() time.Time
}

// New creates an inventory with a sized grid. A grid with zero rows or
// columns is left unsized and rejects every mutation.
func New(id string, owner OwnerID, rows, columns int, weightCapacity float64, opts ...Option) *Inventory {
	inv := &Inventory{
		ID:             id,
		Owner:          owner,
		grid:           Grid{Rows: rows, Columns: columns},
		weightCapacity: weightCapacity,
		authority:      Authoritative,
		observers:      NewObservers(),
		logger:         logrus.StandardLogger(),
		now:            time.Now,
	}
	applyOptions(inv, opts...)
	inv.slots = make([]*Item, inv.grid.Capacity())
	inv.logger = inv.logger.WithField("inventory", id)
	return inv
}

func applyOptions(inv *Inventory, opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(inv)
		}
	}
}

// Registry returns the currently attached kind registry.
func (inv *Inventory) Registry() *Registry { return inv.registry }

// SetRegistry attaches or replaces the kind registry.
func (inv *Inventory) SetRegistry(reg *Registry) { inv.registry = reg }

// Subscribe registers an event handler and returns a function that removes it.
func (inv *Inventory) Subscribe(handler func(Event)) (cancel func()) {
	if inv.observers == nil {
		inv.observers = NewObservers()
	}
	return inv.observers.Subscribe(handler)
}

// Grid returns the board dimensions.
func (inv *Inventory) Grid() Grid { return inv.grid }

// Rows returns the number of rows.
func (inv *Inventory) Rows() int { return inv.grid.Rows }

// Columns returns the number of columns.
func (inv *Inventory) Columns() int { return inv.grid.Columns }

// Capacity returns the number of slots.
func (inv *Inventory) Capacity() int { return len(inv.slots) }

// WeightCapacity returns the configured weight limit.
func (inv *Inventory) WeightCapacity() float64 { return inv.weightCapacity }

// Revision returns the change counter used to order snapshots.
func (inv *Inventory) Revision() uint64 { return inv.revision }

// HasAuthority reports whether this instance may mutate.
func (inv *Inventory) HasAuthority() bool {
	return inv.authority != nil && inv.authority.HasAuthority()
}

// TileToIndex returns the slot index of a tile.
func (inv *Inventory) TileToIndex(t Tile) int { return inv.grid.TileToIndex(t) }

// IndexToTile returns the tile of a slot index.
func (inv *Inventory) IndexToTile(i int) Tile { return inv.grid.IndexToTile(i) }

// IsTileValid reports whether a tile lies on the grid.
func (inv *Inventory) IsTileValid(t Tile) bool { return inv.grid.IsValid(t) }

// CurrentWeight sums the stack weight of every distinct stack. It is always
// recomputed from the slots.
func (inv *Inventory) CurrentWeight() float64 {
	return inv.weightExcluding(nil)
}

func (inv *Inventory) weightExcluding(exclude *Item) float64 {
	seen := mapset.New[*Item]()
	total := 0.0
	for _, it := range inv.slots {
		if it == nil || it == exclude || seen.Has(it) {
			continue
		}
		seen.Put(it)
		total += it.StackWeight()
	}
	return total
}

// Items returns a copy of the slot array. Multi-cell stacks appear once per cell.
func (inv *Inventory) Items() []*Item {
	out := make([]*Item, len(inv.slots))
	copy(out, inv.slots)
	return out
}

// Stacks returns every distinct stack in row-major order of its top-left cell.
func (inv *Inventory) Stacks() []*Item {
	seen := mapset.New[*Item]()
	out := make([]*Item, 0)
	for _, it := range inv.slots {
		if it == nil || seen.Has(it) {
			continue
		}
		seen.Put(it)
		out = append(out, it)
	}
	return out
}

// ItemsMap returns every distinct stack with its top-left tile.
func (inv *Inventory) ItemsMap() map[*Item]Tile {
	res := make(map[*Item]Tile)
	for i, it := range inv.slots {
		if it == nil {
			continue
		}
		if _, ok := res[it]; !ok {
			res[it] = inv.grid.IndexToTile(i)
		}
	}
	return res
}

// TopLeft returns the anchor tile of a stack held by this inventory.
func (inv *Inventory) TopLeft(item *Item) (Tile, bool) {
	if item == nil {
		return Tile{}, false
	}
	for i, it := range inv.slots {
		if it == item {
			return inv.grid.IndexToTile(i), true
		}
	}
	return Tile{}, false
}

// ItemAt returns the stack covering a tile.
func (inv *Inventory) ItemAt(t Tile) *Item {
	if !inv.grid.IsValid(t) || !inv.sized() {
		return nil
	}
	return inv.slots[inv.grid.TileToIndex(t)]
}

// ItemByID returns the stack with the given instance ID.
func (inv *Inventory) ItemByID(id InstanceID) *Item {
	for _, it := range inv.slots {
		if it != nil && it.id == id {
			return it
		}
	}
	return nil
}

// HasItem reports whether the inventory holds at least quantity units of a kind.
func (inv *Inventory) HasItem(kind KindID, quantity int) bool {
	total := 0
	for _, it := range inv.FindItemsByKind(kind) {
		total += it.quantity
	}
	return total >= quantity
}

// FindItem returns the first stack sharing item's kind.
func (inv *Inventory) FindItem(item *Item) *Item {
	if item == nil {
		return nil
	}
	return inv.FindItemByKind(item.KindID())
}

// FindItems returns every stack sharing item's kind.
func (inv *Inventory) FindItems(item *Item) []*Item {
	if item == nil {
		return nil
	}
	return inv.FindItemsByKind(item.KindID())
}

// FindItemByKind returns the first stack of a kind.
func (inv *Inventory) FindItemByKind(kind KindID) *Item {
	for _, it := range inv.slots {
		if it != nil && it.KindID() == kind {
			return it
		}
	}
	return nil
}

// FindItemsByKind returns every stack of a kind.
func (inv *Inventory) FindItemsByKind(kind KindID) []*Item {
	return inv.filterStacks(func(it *Item) bool { return it.KindID() == kind })
}

// FindItemsByCategory returns every stack whose kind belongs to a category.
func (inv *Inventory) FindItemsByCategory(category string) []*Item {
	return inv.filterStacks(func(it *Item) bool { return it.kind != nil && it.kind.Category == category })
}

func (inv *Inventory) filterStacks(match func(*Item) bool) []*Item {
	var out []*Item
	for _, it := range inv.Stacks() {
		if match(it) {
			out = append(out, it)
		}
	}
	return out
}

// IsRoomAvailable reports whether item's footprint fits with its top-left
// cell at topLeftIndex. Cells occupied by item itself count as free. current
// selects the placed rotation; otherwise the pending rotation is used.
func (inv *Inventory) IsRoomAvailable(item *Item, topLeftIndex int, current bool) bool {
	if item == nil {
		return false
	}
	cells, ok := inv.grid.footprint(topLeftIndex, item.Dimensions(current))
	if !ok || len(inv.slots) == 0 {
		return false
	}
	for _, c := range cells {
		if c >= len(inv.slots) {
			return false
		}
		if occupant := inv.slots[c]; occupant != nil && occupant != item {
			return false
		}
	}
	return true
}

// fits reports whether every cell of the footprint is empty.
func (inv *Inventory) fits(size Size, topLeftIndex int) bool {
	cells, ok := inv.grid.footprint(topLeftIndex, size)
	if !ok {
		return false
	}
	for _, c := range cells {
		if inv.slots[c] != nil {
			return false
		}
	}
	return true
}

// TryAddItemFromKind creates a stack of a registered kind and places it.
// The quantity is clamped to the kind's stack limit.
func (inv *Inventory) TryAddItemFromKind(kind KindID, hint *Tile, quantity int) AddResult {
	if inv.registry == nil {
		return addedNone(quantity, ErrInvalidReference, "no item registry attached")
	}
	k, ok := inv.registry.Lookup(kind)
	if !ok {
		return addedNone(quantity, ErrUnknownKind, fmt.Sprintf("unknown item kind %q", kind))
	}
	return inv.TryAddItem(NewItem(k, quantity), hint)
}

// TryAddItem places item's quantity into the inventory. The hinted tile is
// tried first: merging into a compatible stack there, or placing directly when
// the region is free. The grid is then scanned in row-major order, placing
// weight and stack limited portions at every slot that fits, and finally
// scanned once more with the item rotated.
//
// A nil hint targets the first compatible stack that is not full, or tile (0,0).
// item itself is never placed or modified; placed stacks are new instances.
// Callers deduct AddResult.Given from the source.
func (inv *Inventory) TryAddItem(item *Item, hint *Tile) AddResult {
	if item == nil || item.kind == nil {
		return addedNone(0, ErrInvalidReference, "")
	}
	requested := item.quantity
	if !inv.sized() {
		return addedNone(requested, ErrInvalidReference, "inventory is not initialized")
	}
	if !inv.HasAuthority() {
		return addedNone(requested, ErrNotAuthoritative, "")
	}
	if requested <= 0 {
		return addedNone(requested, ErrInvalidReference, "nothing to add")
	}

	top := 0
	if hint == nil {
		top = inv.defaultHint(item)
	} else {
		if !inv.grid.IsValid(*hint) {
			return addedNone(requested, ErrOutOfBounds, fmt.Sprintf("tile (%d,%d) is outside the inventory", hint.X, hint.Y))
		}
		top = inv.grid.TileToIndex(*hint)
	}

	start := inv.revision
	defer inv.flush(start)
	return inv.tryAdd(item, top)
}

func (inv *Inventory) defaultHint(item *Item) int {
	for i, it := range inv.slots {
		if inv.canStackOnto(it, item) {
			return i
		}
	}
	return 0
}

func (inv *Inventory) canStackOnto(target, item *Item) bool {
	return target != nil && target != item && target.SameKind(item) && target.Stackable() && !target.IsStackFull()
}

func (inv *Inventory) tryAdd(item *Item, top int) AddResult {
	requested := item.quantity
	remaining := requested
	given := 0
	var last *Item

	// Weight already accounted for by item itself does not count against the
	// budget while its units are being redistributed.
	var exclude *Item
	if item.owner == inv {
		exclude = item
	}

	if target := inv.slots[top]; inv.canStackOnto(target, item) {
		inv.ensureStack(item)
		inv.ensureStack(target)
		add := min(inv.weightBudget(item.kind, remaining, exclude), min(target.kind.StackLimit()-target.quantity, remaining))
		if add > 0 {
			target.SetQuantity(target.quantity + add)
			given += add
			remaining -= add
			last = target
			inv.logger.Debugf("Merged %d of %s into stack at index %d.", add, item.KindID(), top)
			if remaining <= 0 {
				return addedAll(target, requested)
			}
		}
	} else if inv.fits(item.Dimensions(false), top) {
		add := inv.placeable(item, remaining, exclude)
		if add > 0 {
			last = inv.place(item, top, add)
			given += add
			remaining -= add
			if remaining <= 0 {
				return addedAll(last, requested)
			}
		}
	}

	restore := item.newRotated
	defer func() { item.newRotated = restore }()

	for pass := 0; pass < 2 && remaining > 0; pass++ {
		if pass == 1 {
			item.newRotated = !item.newRotated
		}
		for idx := 0; idx < len(inv.slots) && remaining > 0; idx++ {
			if !inv.fits(item.Dimensions(false), idx) {
				continue
			}
			add := inv.placeable(item, remaining, exclude)
			if add <= 0 {
				return partial(last, requested, given, ErrCapacityExceeded, fullMessage(item.kind))
			}
			last = inv.place(item, idx, add)
			given += add
			remaining -= add
		}
	}

	if remaining <= 0 {
		return addedAll(last, requested)
	}
	return partial(last, requested, given, ErrNoSpaceAvailable, fullMessage(item.kind))
}

// placeable returns how many units of item a new stack may take.
func (inv *Inventory) placeable(item *Item, remaining int, exclude *Item) int {
	return min(inv.weightBudget(item.kind, remaining, exclude), min(item.kind.StackLimit(), remaining))
}

// weightBudget returns how many units of kind fit under the weight capacity.
func (inv *Inventory) weightBudget(kind *Kind, remaining int, exclude *Item) int {
	if kind == nil || isNearlyZero(kind.Weight) {
		return remaining
	}
	used := inv.weightExcluding(exclude)
	n := math.Floor((inv.weightCapacity - used) / kind.Weight)
	if n > float64(remaining) {
		n = float64(remaining)
	}
	// Division can round up past the capacity, so confirm against the sum.
	for n > 0 && used+n*kind.Weight > inv.weightCapacity {
		n--
	}
	if n <= 0 {
		return 0
	}
	return int(n)
}

func isNearlyZero(f float64) bool {
	return math.Abs(f) <= 1e-8
}

// ensureStack clamps a stack that somehow exceeded its limit.
func (inv *Inventory) ensureStack(it *Item) {
	if limit := it.kind.StackLimit(); it.quantity > limit {
		inv.logger.Warnf("Stack %s of %s holds %d, above its limit %d. Clamping.", it.id, it.KindID(), it.quantity, limit)
		it.SetQuantity(limit)
	}
}

// place creates a new stack copying item's kind and pending rotation and
// writes it into every cell of its footprint.
func (inv *Inventory) place(item *Item, top, quantity int) *Item {
	placed := NewItem(item.kind, quantity)
	placed.rotated = item.newRotated
	placed.newRotated = item.newRotated
	cells, _ := inv.grid.footprint(top, placed.Dimensions(true))
	for _, c := range cells {
		inv.slots[c] = placed
	}
	placed.owner = inv
	inv.revision++
	inv.logger.Debugf("Placed %d of %s at %v.", quantity, item.KindID(), inv.grid.IndexToTile(top))
	inv.emit(EventItemAdded, placed)
	return placed
}

// TryMoveItem moves a stack held by this inventory so its top-left cell lands
// on target. A compatible stack at target absorbs as much as its limit allows
// and the rest stays put. Otherwise the stack is relocated when its pending
// footprint fits, ignoring its own cells. Failing both, the general placement
// engine runs with target as the hint and whatever it placed is deducted from
// the source.
func (inv *Inventory) TryMoveItem(item *Item, target Tile) AddResult {
	if item == nil || item.kind == nil {
		return addedNone(0, ErrInvalidReference, "")
	}
	requested := item.quantity
	if !inv.sized() {
		return addedNone(requested, ErrInvalidReference, "inventory is not initialized")
	}
	if !inv.HasAuthority() {
		return addedNone(requested, ErrNotAuthoritative, "")
	}
	if item.owner != inv {
		return addedNone(requested, ErrInvalidReference, "item is not in this inventory")
	}
	if !inv.grid.IsValid(target) {
		return addedNone(requested, ErrOutOfBounds, fmt.Sprintf("tile (%d,%d) is outside the inventory", target.X, target.Y))
	}
	if at, ok := inv.TopLeft(item); ok && at == target && item.rotated == item.newRotated {
		return addedAll(item, requested)
	}
	top := inv.grid.TileToIndex(target)

	start := inv.revision
	defer inv.flush(start)

	if dst := inv.slots[top]; inv.canStackOnto(dst, item) {
		inv.ensureStack(item)
		inv.ensureStack(dst)
		add := min(inv.weightBudget(item.kind, requested, item), min(dst.kind.StackLimit()-dst.quantity, requested))
		if add <= 0 {
			return addedNone(requested, ErrCapacityExceeded, fullMessage(item.kind))
		}
		dst.SetQuantity(dst.quantity + add)
		if add < requested {
			item.SetQuantity(item.quantity - add)
			return addedSome(dst, requested, add, ErrCapacityExceeded, "")
		}
		inv.removeItem(item)
		return addedAll(dst, requested)
	}

	if inv.IsRoomAvailable(item, top, false) {
		inv.relocate(item, top)
		return addedAll(item, requested)
	}

	res := inv.tryAdd(item, top)
	if res.Given > 0 {
		inv.consume(item, res.Given)
	}
	return res
}

func (inv *Inventory) relocate(item *Item, top int) {
	for i, it := range inv.slots {
		if it == item {
			inv.slots[i] = nil
		}
	}
	item.SetRotated(item.newRotated)
	cells, _ := inv.grid.footprint(top, item.Dimensions(true))
	for _, c := range cells {
		inv.slots[c] = item
	}
	inv.revision++
	inv.logger.Debugf("Relocated %s to %v.", item.id, inv.grid.IndexToTile(top))
}

// ConsumeAll removes a whole stack and returns the quantity removed.
func (inv *Inventory) ConsumeAll(item *Item) int {
	if item == nil {
		return 0
	}
	return inv.ConsumeItem(item, item.quantity)
}

// ConsumeItem removes up to quantity units from a stack held by this
// inventory, dropping the stack when it empties. It returns the quantity removed.
func (inv *Inventory) ConsumeItem(item *Item, quantity int) int {
	if item == nil || !inv.HasAuthority() || item.owner != inv || quantity <= 0 {
		return 0
	}
	start := inv.revision
	defer inv.flush(start)
	return inv.consume(item, quantity)
}

func (inv *Inventory) consume(item *Item, quantity int) int {
	remove := min(quantity, item.quantity)
	if item.quantity-remove <= 0 {
		inv.removeItem(item)
	} else {
		item.SetQuantity(item.quantity - remove)
	}
	return remove
}

// RemoveItem drops a stack from every cell it covers.
func (inv *Inventory) RemoveItem(item *Item) bool {
	if item == nil || !inv.HasAuthority() || item.owner != inv {
		return false
	}
	start := inv.revision
	defer inv.flush(start)
	inv.removeItem(item)
	return true
}

func (inv *Inventory) removeItem(item *Item) {
	for i, it := range inv.slots {
		if it == item {
			inv.slots[i] = nil
		}
	}
	item.owner = nil
	inv.revision++
	inv.emit(EventItemRemoved, item)
}

func (inv *Inventory) sized() bool {
	return len(inv.slots) > 0
}

func (inv *Inventory) emit(t EventType, item *Item) {
	inv.pending = append(inv.pending, Event{Type: t, Inventory: inv, Item: item})
}

// flush publishes queued events followed by a single update event when the
// revision moved since start.
func (inv *Inventory) flush(start uint64) {
	if inv.revision != start {
		inv.emit(EventInventoryUpdated, nil)
	}
	events := inv.pending
	inv.pending = nil
	if len(events) == 0 {
		return
	}
	ts := time.Now()
	if inv.now != nil {
		ts = inv.now()
	}
	for _, e := range events {
		e.Revision = inv.revision
		e.Timestamp = ts
		if inv.observers != nil {
			inv.observers.Publish(e)
		}
		if inv.notifier != nil {
			inv.notifier.Publish(e)
		}
	}
}
