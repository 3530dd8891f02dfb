package inventory

import (
	"errors"
	"testing"
)

func stackableKind(id KindID, max int, weight float64) *Kind {
	return &Kind{ID: id, DisplayName: string(id), Size: Size{Width: 1, Height: 1}, Stackable: true, MaxStackSize: max, Weight: weight}
}

func shapedKind(id KindID, w, h int) *Kind {
	return &Kind{ID: id, DisplayName: string(id), Size: Size{Width: w, Height: h}}
}

func backpack() *Inventory {
	return New("bp", OwnerID("u1"), 15, 6, 100)
}

func TestTileIndexBijection(t *testing.T) {
	g := Grid{Rows: 15, Columns: 6}
	for i := 0; i < g.Capacity(); i++ {
		tile := g.IndexToTile(i)
		if !g.IsValid(tile) {
			t.Fatalf("index %d mapped to invalid tile %v", i, tile)
		}
		if got := g.TileToIndex(tile); got != i {
			t.Fatalf("expected index %d, got %d", i, got)
		}
	}
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Columns; x++ {
			tile := Tile{X: x, Y: y}
			if got := g.IndexToTile(g.TileToIndex(tile)); got != tile {
				t.Fatalf("expected %v, got %v", tile, got)
			}
		}
	}
	if g.IsValid(Tile{X: 6, Y: 0}) || g.IsValid(Tile{X: 0, Y: 15}) || g.IsValid(Tile{X: -1, Y: 0}) {
		t.Fatalf("expected off-board tiles to be invalid")
	}
}

func TestAddAtHint(t *testing.T) {
	inv := backpack()
	a := stackableKind("a", 2, 0)
	res := inv.TryAddItem(NewItem(a, 1), &Tile{X: 0, Y: 0})
	if res.Outcome != AllAdded || res.Given != 1 {
		t.Fatalf("expected AllAdded with 1 given, got %v (%d)", res.Outcome, res.Given)
	}
	if inv.ItemAt(Tile{X: 0, Y: 0}) != res.Item || res.Item.Owner() != inv {
		t.Fatalf("expected slot (0,0) to hold the placed stack")
	}
}

func TestAddMergesThenScans(t *testing.T) {
	inv := backpack()
	a := stackableKind("a", 2, 0)
	first := inv.TryAddItem(NewItem(a, 1), &Tile{X: 0, Y: 0}).Item

	res := inv.TryAddItem(NewItem(a, 1), nil)
	if res.Outcome != AllAdded || res.Item != first || first.Quantity() != 2 {
		t.Fatalf("expected merge into first stack, got %v qty=%d", res.Outcome, first.Quantity())
	}

	res = inv.TryAddItem(NewItem(a, 1), nil)
	if res.Outcome != AllAdded || res.Item == first {
		t.Fatalf("expected a new stack, got %v", res.Outcome)
	}
	if tile, _ := inv.TopLeft(res.Item); tile != (Tile{X: 1, Y: 0}) {
		t.Fatalf("expected new stack at (1,0), got %v", tile)
	}
	if first.Quantity() != 2 || res.Item.Quantity() != 1 {
		t.Fatalf("unexpected quantities %d and %d", first.Quantity(), res.Item.Quantity())
	}
}

func TestAddLargeItemIntoFullGrid(t *testing.T) {
	inv := backpack()
	pebble := shapedKind("pebble", 1, 1)
	for i := 0; i < inv.Capacity(); i++ {
		if res := inv.TryAddItem(NewItem(pebble, 1), nil); res.Outcome != AllAdded {
			t.Fatalf("fill %d: expected AllAdded, got %v", i, res.Outcome)
		}
	}
	crate := NewItem(&Kind{ID: "crate", DisplayName: "Crate", Size: Size{Width: 2, Height: 2}}, 1)
	before := inv.Revision()
	res := inv.TryAddItem(crate, nil)
	if res.Outcome != NoneAdded || res.Given != 0 {
		t.Fatalf("expected NoneAdded, got %v", res.Outcome)
	}
	if !errors.Is(res.Err, ErrNoSpaceAvailable) {
		t.Fatalf("expected ErrNoSpaceAvailable, got %v", res.Err)
	}
	if res.Reason != "Couldn't add Crate to Inventory. Inventory is full." {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
	if crate.Quantity() != 1 || crate.NewRotated() || inv.Revision() != before {
		t.Fatalf("expected source and inventory to be unchanged")
	}
}

func TestRotatedScan(t *testing.T) {
	inv := New("col", OwnerID("u1"), 3, 1, 10)
	pole := NewItem(shapedKind("pole", 3, 1), 1)
	res := inv.TryAddItem(pole, nil)
	if res.Outcome != AllAdded {
		t.Fatalf("expected AllAdded, got %v (%v)", res.Outcome, res.Err)
	}
	if !res.Item.Rotated() {
		t.Fatalf("expected placed stack to be rotated")
	}
	if pole.NewRotated() {
		t.Fatalf("expected source rotation to be restored")
	}
	for y := 0; y < 3; y++ {
		if inv.ItemAt(Tile{X: 0, Y: y}) != res.Item {
			t.Fatalf("expected (0,%d) to be covered", y)
		}
	}
}

func TestWeightLimitedPlacement(t *testing.T) {
	inv := New("w", OwnerID("u1"), 4, 4, 10)
	ore := stackableKind("ore", 10, 1.5)
	res := inv.TryAddItem(NewItem(ore, 10), &Tile{X: 0, Y: 0})
	if res.Outcome != SomeAdded || res.Given != 6 {
		t.Fatalf("expected 6 of 10 added, got %v given=%d", res.Outcome, res.Given)
	}
	if !errors.Is(res.Err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", res.Err)
	}
	if w := inv.CurrentWeight(); w > inv.WeightCapacity() {
		t.Fatalf("weight %.2f exceeds capacity", w)
	}
	res = inv.TryAddItem(NewItem(ore, 1), nil)
	if res.Outcome != NoneAdded || !errors.Is(res.Err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity failure, got %v %v", res.Outcome, res.Err)
	}
}

func TestWeightBudgetNeverExceedsCapacity(t *testing.T) {
	inv := New("w3", OwnerID("u1"), 4, 4, 0.3)
	pebble := stackableKind("pebble", 10, 0.1)
	res := inv.TryAddItem(NewItem(pebble, 3), nil)
	if res.Outcome == AllAdded {
		t.Fatalf("expected a partial add, weight would be %v", 3*0.1)
	}
	if res.Given != 2 || !errors.Is(res.Err, ErrCapacityExceeded) {
		t.Fatalf("expected 2 added with ErrCapacityExceeded, got given=%d err=%v", res.Given, res.Err)
	}
	if w := inv.CurrentWeight(); w > inv.WeightCapacity() {
		t.Fatalf("weight %v exceeds capacity %v", w, inv.WeightCapacity())
	}
}

func TestWeightlessItemsIgnoreCapacity(t *testing.T) {
	inv := New("w0", OwnerID("u1"), 2, 2, 0)
	res := inv.TryAddItem(NewItem(stackableKind("note", 5, 0), 5), nil)
	if res.Outcome != AllAdded {
		t.Fatalf("expected AllAdded, got %v", res.Outcome)
	}
}

func TestMergeRespectsStackLimit(t *testing.T) {
	inv := backpack()
	a := stackableKind("a", 2, 0)
	inv.TryAddItem(NewItem(a, 1), &Tile{X: 0, Y: 0})
	res := inv.TryAddItem(NewItem(a, 2), &Tile{X: 0, Y: 0})
	if res.Outcome != AllAdded || res.Given != 2 {
		t.Fatalf("expected AllAdded, got %v given=%d", res.Outcome, res.Given)
	}
	total := 0
	for _, it := range inv.Stacks() {
		if it.Quantity() > a.StackLimit() {
			t.Fatalf("stack of %d exceeds limit", it.Quantity())
		}
		total += it.Quantity()
	}
	if total != 3 || len(inv.Stacks()) != 2 {
		t.Fatalf("expected 3 units in 2 stacks, got %d in %d", total, len(inv.Stacks()))
	}
}

func TestNoOverlappingFootprints(t *testing.T) {
	inv := New("mix", OwnerID("u1"), 5, 5, 1000)
	kinds := []*Kind{shapedKind("long", 3, 1), shapedKind("box", 2, 2), shapedKind("tall", 1, 2), stackableKind("dust", 3, 0)}
	for i := 0; i < 40; i++ {
		inv.TryAddItem(NewItem(kinds[i%len(kinds)], 2), nil)
	}
	covered := 0
	for it, tile := range inv.ItemsMap() {
		size := it.Dimensions(true)
		for x := tile.X; x < tile.X+size.Width; x++ {
			for y := tile.Y; y < tile.Y+size.Height; y++ {
				if inv.ItemAt(Tile{X: x, Y: y}) != it {
					t.Fatalf("cell (%d,%d) of %s is held by another stack", x, y, it.KindID())
				}
				covered++
			}
		}
	}
	occupied := 0
	for _, it := range inv.Items() {
		if it != nil {
			occupied++
		}
	}
	if covered != occupied {
		t.Fatalf("expected %d occupied cells, got %d", covered, occupied)
	}
}

func TestRoomCheckMatchesPlacement(t *testing.T) {
	inv := New("room", OwnerID("u1"), 4, 4, 1000)
	box := shapedKind("box", 2, 2)
	for i := 0; i < inv.Capacity(); i++ {
		item := NewItem(box, 1)
		if !inv.IsRoomAvailable(item, i, false) {
			continue
		}
		hint := inv.IndexToTile(i)
		res := inv.TryAddItem(item, &hint)
		if res.Outcome != AllAdded {
			t.Fatalf("room reported at %v but placement failed: %v", hint, res.Err)
		}
		if tile, _ := inv.TopLeft(res.Item); tile != hint {
			t.Fatalf("expected placement at %v, got %v", hint, tile)
		}
	}
	if len(inv.Stacks()) != 4 {
		t.Fatalf("expected 4 boxes, got %d", len(inv.Stacks()))
	}
}

func TestMovePartialMerge(t *testing.T) {
	inv := backpack()
	k := stackableKind("arrow", 10, 0)
	src := inv.TryAddItem(NewItem(k, 4), &Tile{X: 0, Y: 0}).Item
	dst := inv.TryAddItem(NewItem(k, 8), &Tile{X: 1, Y: 0}).Item

	res := inv.TryMoveItem(src, Tile{X: 1, Y: 0})
	if res.Outcome != SomeAdded || res.Given != 2 {
		t.Fatalf("expected partial merge of 2, got %v given=%d", res.Outcome, res.Given)
	}
	if dst.Quantity() != 10 || src.Quantity() != 2 {
		t.Fatalf("expected 10 and 2, got %d and %d", dst.Quantity(), src.Quantity())
	}
	if inv.ItemAt(Tile{X: 0, Y: 0}) != src {
		t.Fatalf("expected remainder to stay at the source tile")
	}
}

func TestMoveFullMergeRemovesSource(t *testing.T) {
	inv := backpack()
	k := stackableKind("arrow", 10, 0)
	src := inv.TryAddItem(NewItem(k, 3), &Tile{X: 0, Y: 0}).Item
	dst := inv.TryAddItem(NewItem(k, 3), &Tile{X: 2, Y: 0}).Item
	res := inv.TryMoveItem(src, Tile{X: 2, Y: 0})
	if res.Outcome != AllAdded || dst.Quantity() != 6 {
		t.Fatalf("expected full merge, got %v qty=%d", res.Outcome, dst.Quantity())
	}
	if src.Owner() != nil || inv.ItemAt(Tile{X: 0, Y: 0}) != nil {
		t.Fatalf("expected source stack to be removed")
	}
}

func TestMoveRelocatesOverOwnCells(t *testing.T) {
	inv := New("r", OwnerID("u1"), 2, 4, 10)
	bar := inv.TryAddItem(NewItem(shapedKind("bar", 2, 1), 1), &Tile{X: 0, Y: 0}).Item
	res := inv.TryMoveItem(bar, Tile{X: 1, Y: 0})
	if res.Outcome != AllAdded || res.Item != bar {
		t.Fatalf("expected relocation of the same stack, got %v", res.Outcome)
	}
	if inv.ItemAt(Tile{X: 0, Y: 0}) != nil || inv.ItemAt(Tile{X: 1, Y: 0}) != bar || inv.ItemAt(Tile{X: 2, Y: 0}) != bar {
		t.Fatalf("unexpected footprint after relocation")
	}

	bar.Rotate()
	res = inv.TryMoveItem(bar, Tile{X: 0, Y: 0})
	if res.Outcome != AllAdded || !bar.Rotated() {
		t.Fatalf("expected rotated relocation, got %v", res.Outcome)
	}
	if inv.ItemAt(Tile{X: 0, Y: 1}) != bar || inv.ItemAt(Tile{X: 1, Y: 0}) != nil {
		t.Fatalf("unexpected footprint after rotated relocation")
	}
}

func TestMoveOntoOwnAnchorIsNoop(t *testing.T) {
	inv := New("n", OwnerID("u1"), 2, 4, 10)
	bar := inv.TryAddItem(NewItem(shapedKind("bar", 2, 1), 1), &Tile{X: 1, Y: 0}).Item
	rev, itemRev := inv.Revision(), bar.Revision()
	var got []EventType
	cancel := inv.Subscribe(func(e Event) { got = append(got, e.Type) })
	defer cancel()

	res := inv.TryMoveItem(bar, Tile{X: 1, Y: 0})
	if res.Outcome != AllAdded || res.Item != bar || res.Given != 1 {
		t.Fatalf("expected AllAdded for the same stack, got %v", res.Outcome)
	}
	if inv.Revision() != rev || bar.Revision() != itemRev || len(got) != 0 {
		t.Fatalf("expected no mutation, revision %d->%d events %v", rev, inv.Revision(), got)
	}

	bar.Rotate()
	if res := inv.TryMoveItem(bar, Tile{X: 1, Y: 0}); res.Outcome != AllAdded || !bar.Rotated() {
		t.Fatalf("expected pending rotation to apply in place, got %v", res.Outcome)
	}
	if inv.Revision() == rev {
		t.Fatalf("expected revision bump after rotating in place")
	}
}

func TestMoveFallbackPreservesQuantity(t *testing.T) {
	inv := New("f", OwnerID("u1"), 1, 3, 10)
	src := inv.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), &Tile{X: 0, Y: 0}).Item
	inv.TryAddItem(NewItem(shapedKind("b", 1, 1), 1), &Tile{X: 1, Y: 0})

	res := inv.TryMoveItem(src, Tile{X: 1, Y: 0})
	if res.Outcome != AllAdded || res.Given != 1 {
		t.Fatalf("expected fallback placement, got %v", res.Outcome)
	}
	if src.Owner() != nil {
		t.Fatalf("expected source to be consumed")
	}
	if got := inv.FindItemByKind("a"); got == nil || got != inv.ItemAt(Tile{X: 2, Y: 0}) {
		t.Fatalf("expected moved stack at (2,0)")
	}
}

func TestMoveRejectsForeignAndInvalid(t *testing.T) {
	inv := backpack()
	other := backpack()
	item := other.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), nil).Item
	if res := inv.TryMoveItem(item, Tile{}); res.Outcome != NoneAdded || !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v %v", res.Outcome, res.Err)
	}
	if res := other.TryMoveItem(item, Tile{X: 9, Y: 0}); !errors.Is(res.Err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", res.Err)
	}
	if res := other.TryMoveItem(nil, Tile{}); !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference for nil item, got %v", res.Err)
	}
}

func TestAddFailureModes(t *testing.T) {
	inv := backpack()
	if res := inv.TryAddItem(nil, nil); res.Outcome != NoneAdded || !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", res.Err)
	}
	if res := inv.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), &Tile{X: -1, Y: 0}); !errors.Is(res.Err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", res.Err)
	}
	unsized := New("u", OwnerID("u1"), 0, 0, 10)
	if res := unsized.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), nil); !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference for unsized grid, got %v", res.Err)
	}
	replica := New("r", OwnerID("u1"), 2, 2, 10, WithAuthority(Replica))
	if res := replica.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), nil); !errors.Is(res.Err, ErrNotAuthoritative) {
		t.Fatalf("expected not authoritative, got %v", res.Err)
	}
}

func TestConsumeAndQueries(t *testing.T) {
	inv, _ := SampleInventory("u1")
	if !inv.HasItem("apple", 5) || inv.HasItem("apple", 6) {
		t.Fatalf("unexpected apple count")
	}
	apple := inv.FindItemByKind("apple")
	if got := inv.ConsumeItem(apple, 2); got != 2 || apple.Quantity() != 3 {
		t.Fatalf("expected 2 consumed leaving 3, got %d leaving %d", got, apple.Quantity())
	}
	if got := inv.ConsumeAll(apple); got != 3 || inv.HasItem("apple", 1) {
		t.Fatalf("expected apples to be gone")
	}
	if len(inv.FindItemsByCategory("weapon")) != 1 {
		t.Fatalf("expected one weapon")
	}
	rifle := inv.FindItemByKind("rifle")
	if inv.ItemByID(rifle.ID()) != rifle {
		t.Fatalf("lookup by id failed")
	}
	if !inv.RemoveItem(rifle) || inv.RemoveItem(rifle) {
		t.Fatalf("expected rifle to be removed exactly once")
	}
}

func TestEventsPerOperation(t *testing.T) {
	inv := backpack()
	var got []EventType
	cancel := inv.Subscribe(func(e Event) { got = append(got, e.Type) })

	res := inv.TryAddItem(NewItem(stackableKind("a", 2, 0), 2), nil)
	if len(got) != 2 || got[0] != EventItemAdded || got[1] != EventInventoryUpdated {
		t.Fatalf("unexpected events %v", got)
	}

	got = nil
	inv.TryAddItem(nil, nil)
	if len(got) != 0 {
		t.Fatalf("expected no events on failure, got %v", got)
	}

	inv.ConsumeAll(res.Item)
	if len(got) != 2 || got[0] != EventItemRemoved || got[1] != EventInventoryUpdated {
		t.Fatalf("unexpected events %v", got)
	}

	cancel()
	got = nil
	inv.TryAddItem(NewItem(stackableKind("a", 2, 0), 1), nil)
	if len(got) != 0 {
		t.Fatalf("expected no events after cancel")
	}
}
