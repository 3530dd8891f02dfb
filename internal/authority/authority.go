// Package authority serializes every mutation of shared inventory and world
// state through a single goroutine and publishes the resulting snapshots.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/internal/storage"
	"github.com/gravitas-games/gridstash/internal/world"
	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// ErrStopped is returned when the command loop is no longer running.
var ErrStopped = errors.New("authority: stopped")

const (
	defaultQueueSize   = 1024
	defaultRememberMax = 4096
)

// Broadcaster receives state changes produced by the command loop. Calls
// happen on the loop goroutine and must not block.
type Broadcaster interface {
	InventoryChanged(s inventory.Snapshot)
	WorldChanged(e world.Event)
	InteractionCompleted(actor world.CharacterID, r Result)
}

// NullBroadcaster discards everything.
type NullBroadcaster struct{}

func (NullBroadcaster) InventoryChanged(inventory.Snapshot) {}

func (NullBroadcaster) WorldChanged(world.Event) {}

func (NullBroadcaster) InteractionCompleted(world.CharacterID, Result) {}

// Recorder persists an audit trail of applied commands.
type Recorder interface {
	Record(entry storage.LedgerEntry) error
}

// Option configures an Authority.
type Option func(*Authority)

// WithBroadcaster sets the sink for snapshots and world events.
func WithBroadcaster(b Broadcaster) Option {
	return func(a *Authority) {
		if b != nil {
			a.broadcaster = b
		}
	}
}

// WithRecorder attaches an audit ledger.
func WithRecorder(r Recorder) Option {
	return func(a *Authority) { a.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Authority) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTickRate sets how often timed interactions are evaluated, in Hz.
func WithTickRate(hz int) Option {
	return func(a *Authority) {
		if hz > 0 {
			a.tick = time.Second / time.Duration(hz)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

type request struct {
	cmd  Command
	fn   func()
	resp chan Result
}

// Authority owns every authoritative inventory and the world. All access
// happens on the goroutine running Run.
type Authority struct {
	registry    *inventory.Registry
	world       *world.World
	inventories map[string]*inventory.Inventory

	broadcaster Broadcaster
	recorder    Recorder
	logger      logrus.FieldLogger
	tick        time.Duration
	now         func() time.Time

	requests chan request
	done     chan struct{}

	remembered map[commandKey]Result
	order      []commandKey
	limit      int
}

// commandKey scopes command ids to the actor that issued them.
type commandKey struct {
	actor world.CharacterID
	id    ulid.ULID
}

// New creates an authority around a kind registry and a world.
func New(reg *inventory.Registry, w *world.World, opts ...Option) *Authority {
	a := &Authority{
		registry:    reg,
		world:       w,
		inventories: make(map[string]*inventory.Inventory),
		broadcaster: NullBroadcaster{},
		logger:      logrus.StandardLogger(),
		tick:        time.Second / 20,
		now:         time.Now,
		requests:    make(chan request, defaultQueueSize),
		done:        make(chan struct{}),
		remembered:  make(map[commandKey]Result),
		limit:       defaultRememberMax,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.logger = a.logger.WithField("component", "authority")
	if a.world == nil {
		a.world = world.New(a.logger, 0)
	}
	a.world.OnEvent = func(e world.Event) { a.broadcaster.WorldChanged(e) }
	return a
}

// Run applies queued commands until ctx is cancelled.
func (a *Authority) Run(ctx context.Context) error {
	defer close(a.done)
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	a.logger.Infof("Authority loop started (tick %s).", a.tick)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Authority loop stopped.")
			return ctx.Err()
		case req := <-a.requests:
			if req.fn != nil {
				req.fn()
				req.resp <- Result{}
				continue
			}
			req.resp <- a.handle(req.cmd)
		case <-ticker.C:
			a.onTick(a.now())
		}
	}
}

// Submit queues a command and waits for its result.
func (a *Authority) Submit(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ID == (ulid.ULID{}) {
		cmd.ID = NewCommandID()
	}
	req := request{cmd: cmd, resp: make(chan Result, 1)}
	if err := a.enqueue(ctx, req); err != nil {
		return Result{}, err
	}
	select {
	case res := <-req.resp:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-a.done:
		return Result{}, ErrStopped
	}
}

func (a *Authority) enqueue(ctx context.Context, req request) error {
	select {
	case a.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrStopped
	}
}

// call runs fn on the loop goroutine and waits for it.
func (a *Authority) call(ctx context.Context, fn func()) error {
	req := request{fn: fn, resp: make(chan Result, 1)}
	if err := a.enqueue(ctx, req); err != nil {
		return err
	}
	select {
	case <-req.resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrStopped
	}
}

// Join registers a character and its inventory and returns the inventory snapshot.
func (a *Authority) Join(ctx context.Context, c *world.Character) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	err := a.call(ctx, func() {
		a.world.AddCharacter(c)
		if c.Inventory != nil {
			a.inventories[c.Inventory.ID] = c.Inventory
			snap = c.Inventory.Snapshot()
		}
		a.logger.WithField("character", c.ID).Info("Character joined.")
	})
	return snap, err
}

// Leave removes a character and returns its final inventory snapshot.
func (a *Authority) Leave(ctx context.Context, id world.CharacterID) (inventory.Snapshot, bool, error) {
	var (
		snap  inventory.Snapshot
		found bool
	)
	err := a.call(ctx, func() {
		c := a.world.RemoveCharacter(id)
		if c == nil {
			return
		}
		found = true
		if c.Inventory != nil {
			snap = c.Inventory.Snapshot()
			delete(a.inventories, c.Inventory.ID)
		}
		a.logger.WithField("character", id).Info("Character left.")
	})
	return snap, found, err
}

// AddInventory registers an inventory without a character, such as a chest.
func (a *Authority) AddInventory(ctx context.Context, inv *inventory.Inventory) error {
	return a.call(ctx, func() { a.inventories[inv.ID] = inv })
}

// Snapshot returns the current state of an inventory.
func (a *Authority) Snapshot(ctx context.Context, id string) (inventory.Snapshot, error) {
	var (
		snap inventory.Snapshot
		ok   bool
	)
	if err := a.call(ctx, func() {
		var inv *inventory.Inventory
		if inv, ok = a.inventories[id]; ok {
			snap = inv.Snapshot()
		}
	}); err != nil {
		return snap, err
	}
	if !ok {
		return snap, fmt.Errorf("%w: %s", ErrUnknownInventory, id)
	}
	return snap, nil
}

// SpawnPickup creates a pickup of a registered kind in the world.
func (a *Authority) SpawnPickup(ctx context.Context, kind inventory.KindID, qty int, pos world.Vec3) (world.PickupID, error) {
	var (
		id       world.PickupID
		spawnErr error
	)
	if err := a.call(ctx, func() {
		item, err := a.registry.NewItem(kind, qty)
		if err != nil {
			spawnErr = err
			return
		}
		if p := a.world.SpawnPickup(item, pos); p != nil {
			id = p.ID
		}
	}); err != nil {
		return "", err
	}
	return id, spawnErr
}

// PickupView is a copy of a pickup's state safe to read off the loop.
type PickupView struct {
	ID       world.PickupID
	Kind     inventory.KindID
	Name     string
	Quantity int
	Position world.Vec3
}

// ViewPickup copies the state of p. It must run on the loop goroutine.
func ViewPickup(p *world.Pickup) PickupView {
	v := PickupView{ID: p.ID, Position: p.Position}
	if p.Item != nil {
		v.Kind = p.Item.KindID()
		v.Quantity = p.Item.Quantity()
	}
	if p.Interactable != nil {
		v.Name = p.Interactable.NameText
	}
	return v
}

// Pickups lists every pickup currently in the world.
func (a *Authority) Pickups(ctx context.Context) ([]PickupView, error) {
	var out []PickupView
	err := a.call(ctx, func() {
		for _, p := range a.world.Pickups() {
			out = append(out, ViewPickup(p))
		}
	})
	return out, err
}

func (a *Authority) handle(cmd Command) Result {
	key := commandKey{actor: cmd.Actor, id: cmd.ID}
	if res, ok := a.remembered[key]; ok {
		res.Duplicate = true
		return res
	}

	before := a.revisions()
	res := a.apply(cmd)
	res.CommandID = cmd.ID
	res.Type = cmd.Type
	res.Actor = cmd.Actor
	if res.Err != nil && res.Error == "" {
		res.Error = res.Err.Error()
	}

	a.remember(key, res)
	a.publishChanges(before)
	a.record(res)

	log := a.logger.WithFields(logrus.Fields{
		"command": cmd.ID.String(),
		"type":    cmd.Type,
		"actor":   cmd.Actor,
	})
	if res.Err != nil {
		log.WithError(res.Err).Debug("Command rejected.")
	} else {
		log.Debugf("Command applied (%s, %d/%d).", res.Outcome, res.Given, res.Requested)
	}
	return res
}

func (a *Authority) remember(key commandKey, res Result) {
	a.remembered[key] = res
	a.order = append(a.order, key)
	for len(a.order) > a.limit {
		delete(a.remembered, a.order[0])
		a.order = a.order[1:]
	}
}

func (a *Authority) revisions() map[string]uint64 {
	out := make(map[string]uint64, len(a.inventories))
	for id, inv := range a.inventories {
		out[id] = inv.Revision()
	}
	return out
}

func (a *Authority) publishChanges(before map[string]uint64) {
	ids := make([]string, 0, len(a.inventories))
	for id := range a.inventories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		inv := a.inventories[id]
		if rev, ok := before[id]; ok && rev == inv.Revision() {
			continue
		}
		a.broadcaster.InventoryChanged(inv.Snapshot())
	}
}

func (a *Authority) record(res Result) {
	if a.recorder == nil || res.Given <= 0 {
		return
	}
	entry := storage.LedgerEntry{
		CommandID: res.CommandID.String(),
		Actor:     string(res.Actor),
		Command:   string(res.Type),
		Inventory: res.Inventory,
		Kind:      string(res.Kind),
		Given:     res.Given,
		Outcome:   res.Outcome.String(),
		At:        a.now(),
	}
	if err := a.recorder.Record(entry); err != nil {
		a.logger.WithError(err).Warn("Failed to record command in ledger.")
	}
}

func (a *Authority) onTick(now time.Time) {
	before := a.revisions()
	done := a.world.Tick(now)
	if len(done) == 0 {
		return
	}
	for _, in := range done {
		res := fromAdd(in.Result)
		res.Type = CommandBeginInteract
		res.Actor = in.Character.ID
		res.Pickup = in.Pickup.ID
		if in.Character.Inventory != nil {
			res.Inventory = in.Character.Inventory.ID
		}
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		a.record(res)
		a.broadcaster.InteractionCompleted(in.Character.ID, res)
	}
	a.publishChanges(before)
}
