package authority

import (
	"fmt"
	"sort"

	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

func (a *Authority) apply(cmd Command) Result {
	switch cmd.Type {
	case CommandGrant:
		return a.grant(cmd)
	case CommandMove:
		return a.move(cmd)
	case CommandLoot:
		return a.loot(cmd)
	case CommandDrop:
		return a.drop(cmd)
	case CommandRotate:
		return a.rotate(cmd)
	case CommandConsume:
		return a.consume(cmd)
	case CommandTakePickup:
		return a.takePickup(cmd)
	case CommandBeginInteract:
		return a.beginInteract(cmd)
	case CommandEndInteract:
		if !a.world.EndInteract(cmd.Actor) {
			return failed(fmt.Errorf("%w: %s", ErrUnknownCharacter, cmd.Actor))
		}
		return Result{Outcome: inventory.NoneAdded}
	case CommandUpdatePosition:
		if cmd.Position == nil {
			return failed(fmt.Errorf("%w: position required", ErrUnknownCommand))
		}
		if _, ok := a.world.UpdatePosition(cmd.Actor, *cmd.Position); !ok {
			return failed(fmt.Errorf("%w: %s", ErrUnknownCharacter, cmd.Actor))
		}
		return Result{Outcome: inventory.NoneAdded}
	default:
		return failed(fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type))
	}
}

func (a *Authority) character(id world.CharacterID) (*world.Character, error) {
	c, ok := a.world.Character(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCharacter, id)
	}
	return c, nil
}

// target resolves the inventory a command writes into, defaulting to the
// actor's own inventory.
func (a *Authority) target(cmd Command) (*inventory.Inventory, error) {
	if cmd.Inventory != "" {
		inv, ok := a.inventories[cmd.Inventory]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownInventory, cmd.Inventory)
		}
		return inv, nil
	}
	c, err := a.character(cmd.Actor)
	if err != nil {
		return nil, err
	}
	if c.Inventory == nil {
		return nil, fmt.Errorf("%w: %s has no inventory", ErrUnknownInventory, cmd.Actor)
	}
	return c.Inventory, nil
}

// locate finds a stack by instance ID in any registered inventory.
func (a *Authority) locate(id inventory.InstanceID) (*inventory.Inventory, *inventory.Item, error) {
	ids := make([]string, 0, len(a.inventories))
	for invID := range a.inventories {
		ids = append(ids, invID)
	}
	sort.Strings(ids)
	for _, invID := range ids {
		inv := a.inventories[invID]
		if it := inv.ItemByID(id); it != nil {
			return inv, it, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownItem, id)
}

// accessible reports whether actor may take from or put into inv. Inventories
// without an owner are shared containers.
func (a *Authority) accessible(actor world.CharacterID, inv *inventory.Inventory) bool {
	return inv.Owner == "" || inv.Owner == inventory.OwnerID(actor)
}

func (a *Authority) ownedItem(cmd Command) (*inventory.Inventory, *inventory.Item, error) {
	inv, item, err := a.locate(cmd.Item)
	if err != nil {
		return nil, nil, err
	}
	if !a.accessible(cmd.Actor, inv) {
		return nil, nil, ErrForbidden
	}
	return inv, item, nil
}

func (a *Authority) grant(cmd Command) Result {
	inv, err := a.target(cmd)
	if err != nil {
		return failed(err)
	}
	res := fromAdd(inv.TryAddItemFromKind(cmd.Kind, cmd.Tile, cmd.Quantity))
	res.Inventory = inv.ID
	res.Kind = cmd.Kind
	return res
}

func (a *Authority) move(cmd Command) Result {
	if cmd.Tile == nil {
		return failed(ErrMissingTile)
	}
	src, item, err := a.ownedItem(cmd)
	if err != nil {
		return failed(err)
	}
	dst := src
	if cmd.Inventory != "" {
		if dst, err = a.target(cmd); err != nil {
			return failed(err)
		}
		if !a.accessible(cmd.Actor, dst) {
			return failed(ErrForbidden)
		}
	}
	kind := item.KindID()
	res := fromAdd(inventory.Move(item, dst, *cmd.Tile))
	res.Inventory = dst.ID
	res.Kind = kind
	return res
}

func (a *Authority) loot(cmd Command) Result {
	_, item, err := a.ownedItem(cmd)
	if err != nil {
		return failed(err)
	}
	dst, err := a.target(cmd)
	if err != nil {
		return failed(err)
	}
	if !a.accessible(cmd.Actor, dst) {
		return failed(ErrForbidden)
	}
	kind := item.KindID()
	res := fromAdd(inventory.Loot(item, dst, cmd.Tile))
	res.Inventory = dst.ID
	res.Kind = kind
	return res
}

func (a *Authority) drop(cmd Command) Result {
	c, err := a.character(cmd.Actor)
	if err != nil {
		return failed(err)
	}
	inv, item, err := a.ownedItem(cmd)
	if err != nil {
		return failed(err)
	}
	requested := cmd.Quantity
	if requested <= 0 {
		requested = item.Quantity()
	}
	dropped, n := inventory.Drop(item, requested)
	if n == 0 {
		return failed(inventory.ErrInvalidReference)
	}
	res := Result{Outcome: inventory.AllAdded, Requested: requested, Given: n, Inventory: inv.ID, Kind: dropped.KindID()}
	if n < requested {
		res.Outcome = inventory.SomeAdded
	}
	if p := a.world.SpawnPickup(dropped, c.Position); p != nil {
		res.Pickup = p.ID
	}
	return res
}

func (a *Authority) rotate(cmd Command) Result {
	inv, item, err := a.ownedItem(cmd)
	if err != nil {
		return failed(err)
	}
	item.Rotate()
	return Result{Outcome: inventory.AllAdded, Inventory: inv.ID, Kind: item.KindID()}
}

func (a *Authority) consume(cmd Command) Result {
	inv, item, err := a.ownedItem(cmd)
	if err != nil {
		return failed(err)
	}
	requested := cmd.Quantity
	if requested <= 0 {
		requested = 1
	}
	kind := item.KindID()
	n := inv.ConsumeItem(item, requested)
	res := Result{Outcome: inventory.AllAdded, Requested: requested, Given: n, Inventory: inv.ID, Kind: kind}
	switch {
	case n == 0:
		res.Outcome = inventory.NoneAdded
		res.Err = inventory.ErrInvalidReference
	case n < requested:
		res.Outcome = inventory.SomeAdded
	}
	return res
}

func (a *Authority) takePickup(cmd Command) Result {
	c, err := a.character(cmd.Actor)
	if err != nil {
		return failed(err)
	}
	in, ok := a.world.Take(cmd.Actor, cmd.Pickup)
	if !ok {
		return failed(fmt.Errorf("%w: %s", ErrUnknownPickup, cmd.Pickup))
	}
	return interactionResult(c, in)
}

func (a *Authority) beginInteract(cmd Command) Result {
	c, err := a.character(cmd.Actor)
	if err != nil {
		return failed(err)
	}
	in, _ := a.world.BeginInteract(cmd.Actor, a.now())
	if in == nil {
		res := Result{Outcome: inventory.NoneAdded}
		if f := c.Focus(); f != nil {
			res.Pickup = f.ID
		}
		return res
	}
	return interactionResult(c, in)
}

func interactionResult(c *world.Character, in *world.Interaction) Result {
	res := fromAdd(in.Result)
	res.Pickup = in.Pickup.ID
	if in.Pickup.Item != nil {
		res.Kind = in.Pickup.Item.KindID()
	}
	if c.Inventory != nil {
		res.Inventory = c.Inventory.ID
	}
	return res
}
