package authority

import (
	"context"

	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Submitter forwards commands to the authority.
type Submitter interface {
	Submit(ctx context.Context, cmd Command) (Result, error)
}

// Replica mirrors an authoritative inventory. It never mutates locally:
// requests go through the Submitter and state arrives as snapshots.
type Replica struct {
	inv       *inventory.Inventory
	actor     world.CharacterID
	submitter Submitter
}

// NewReplica creates an empty mirror for the inventory with the given ID.
func NewReplica(id string, actor world.CharacterID, reg *inventory.Registry, s Submitter, opts ...inventory.Option) *Replica {
	opts = append(opts, inventory.WithRegistry(reg), inventory.WithAuthority(inventory.Replica))
	return &Replica{
		inv:       inventory.New(id, inventory.OwnerID(actor), 0, 0, 0, opts...),
		actor:     actor,
		submitter: s,
	}
}

// Inventory returns the mirrored inventory for reads and subscriptions.
func (r *Replica) Inventory() *inventory.Inventory { return r.inv }

// Apply installs an authoritative snapshot. Stale and duplicate snapshots are ignored.
func (r *Replica) Apply(s inventory.Snapshot) (bool, error) {
	if s.ID != r.inv.ID {
		return false, nil
	}
	return r.inv.ApplySnapshot(s)
}

func (r *Replica) submit(ctx context.Context, cmd Command) (Result, error) {
	cmd.ID = NewCommandID()
	cmd.Actor = r.actor
	return r.submitter.Submit(ctx, cmd)
}

// RequestMove asks the authority to move a stack within this inventory.
func (r *Replica) RequestMove(ctx context.Context, item inventory.InstanceID, tile inventory.Tile) (Result, error) {
	return r.submit(ctx, Command{Type: CommandMove, Inventory: r.inv.ID, Item: item, Tile: &tile})
}

// RequestLoot asks the authority to pull a stack from another inventory into this one.
func (r *Replica) RequestLoot(ctx context.Context, item inventory.InstanceID, hint *inventory.Tile) (Result, error) {
	return r.submit(ctx, Command{Type: CommandLoot, Inventory: r.inv.ID, Item: item, Tile: hint})
}

// RequestDrop asks the authority to drop units of a stack into the world.
func (r *Replica) RequestDrop(ctx context.Context, item inventory.InstanceID, qty int) (Result, error) {
	return r.submit(ctx, Command{Type: CommandDrop, Item: item, Quantity: qty})
}

// RequestRotate asks the authority to flip a stack's pending rotation.
func (r *Replica) RequestRotate(ctx context.Context, item inventory.InstanceID) (Result, error) {
	return r.submit(ctx, Command{Type: CommandRotate, Item: item})
}

// RequestConsume asks the authority to use up units of a stack.
func (r *Replica) RequestConsume(ctx context.Context, item inventory.InstanceID, qty int) (Result, error) {
	return r.submit(ctx, Command{Type: CommandConsume, Item: item, Quantity: qty})
}
