package inventory

import (
	"errors"
	"testing"
)

func TestLootPartialKeepsRemainder(t *testing.T) {
	k := stackableKind("coin", 10, 1)
	chest := New("chest", "npc", 2, 2, 100)
	bag := New("bag", "u1", 1, 1, 4)
	coins := chest.TryAddItem(NewItem(k, 10), nil).Item

	res := Loot(coins, bag, nil)
	if res.Outcome != SomeAdded || res.Given != 4 {
		t.Fatalf("expected 4 looted, got %v given=%d", res.Outcome, res.Given)
	}
	if coins.Quantity() != 6 || coins.Owner() != chest {
		t.Fatalf("expected remainder of 6 to stay in chest, got %d", coins.Quantity())
	}
	if !bag.HasItem("coin", 4) {
		t.Fatalf("expected bag to hold 4 coins")
	}
}

func TestLootRejectsSameInventory(t *testing.T) {
	inv := backpack()
	item := inv.TryAddItem(NewItem(shapedKind("a", 1, 1), 1), nil).Item
	if res := Loot(item, inv, nil); !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", res.Err)
	}
	if res := Loot(NewItem(shapedKind("a", 1, 1), 1), inv, nil); !errors.Is(res.Err, ErrInvalidReference) {
		t.Fatalf("expected invalid reference for detached item, got %v", res.Err)
	}
}

func TestMoveAcrossInventories(t *testing.T) {
	a := backpack()
	b := backpack()
	item := a.TryAddItem(NewItem(shapedKind("box", 2, 2), 1), nil).Item
	res := Move(item, b, Tile{X: 3, Y: 4})
	if res.Outcome != AllAdded || item.Owner() != nil {
		t.Fatalf("expected move to complete, got %v", res.Outcome)
	}
	if tile, _ := b.TopLeft(res.Item); tile != (Tile{X: 3, Y: 4}) {
		t.Fatalf("expected placement at hint, got %v", tile)
	}
	res = Move(res.Item, b, Tile{X: 0, Y: 0})
	if res.Outcome != AllAdded || b.ItemAt(Tile{X: 1, Y: 1}) == nil {
		t.Fatalf("expected move within inventory")
	}
}

func TestDrop(t *testing.T) {
	inv := backpack()
	k := stackableKind("seed", 10, 0)
	stack := inv.TryAddItem(NewItem(k, 7), nil).Item

	dropped, n := Drop(stack, 3)
	if n != 3 || dropped == stack || dropped.Quantity() != 3 || dropped.Owner() != nil {
		t.Fatalf("expected a detached stack of 3")
	}
	if stack.Quantity() != 4 {
		t.Fatalf("expected 4 left, got %d", stack.Quantity())
	}
	dropped, n = Drop(stack, 0)
	if n != 4 || dropped != stack || inv.HasItem("seed", 1) {
		t.Fatalf("expected whole stack to drop")
	}
	if d, n := Drop(stack, 1); d != nil || n != 0 {
		t.Fatalf("expected detached stack to be undroppable")
	}
}
