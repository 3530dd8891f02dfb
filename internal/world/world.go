// Package world holds the objects characters interact with outside their
// inventories: pickups lying on the ground and the proximity focus used to
// select them.
package world

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two positions.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EventType represents the type of world event.
type EventType int

const (
	EventPickupSpawned EventType = iota
	EventPickupRemoved
	EventFocusChanged
)

// Event describes a world change. Pickup is nil for a focus change that
// cleared the character's focus.
type Event struct {
	Type      EventType
	Pickup    *Pickup
	Character *Character
}

// Interaction is the outcome of a completed interaction.
type Interaction struct {
	Character *Character
	Pickup    *Pickup
	Result    inventory.AddResult
	Taken     bool
}

// World is not safe for concurrent use. The authority owns it.
type World struct {
	pickups       map[PickupID]*Pickup
	characters    map[CharacterID]*Character
	checkDistance float64
	reach         float64
	logger        logrus.FieldLogger

	// OnEvent receives every world event when set.
	OnEvent func(Event)
}

// New creates an empty world. checkDistance bounds focus searches.
func New(logger logrus.FieldLogger, checkDistance float64) *World {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if checkDistance <= 0 {
		checkDistance = DefaultCheckDistance
	}
	return &World{
		pickups:       make(map[PickupID]*Pickup),
		characters:    make(map[CharacterID]*Character),
		checkDistance: checkDistance,
		logger:        logger.WithField("component", "world"),
	}
}

// SetInteractionDistance sets how close characters must stand to pickups
// spawned from now on.
func (w *World) SetInteractionDistance(d float64) {
	w.reach = d
}

func (w *World) publish(e Event) {
	if w.OnEvent != nil {
		w.OnEvent(e)
	}
}

// AddCharacter registers a character.
func (w *World) AddCharacter(c *Character) {
	w.characters[c.ID] = c
}

// RemoveCharacter ends the character's focus and interaction and forgets it.
func (w *World) RemoveCharacter(id CharacterID) *Character {
	c, ok := w.characters[id]
	if !ok {
		return nil
	}
	w.clearFocus(c)
	delete(w.characters, id)
	return c
}

// Character returns a registered character.
func (w *World) Character(id CharacterID) (*Character, bool) {
	c, ok := w.characters[id]
	return c, ok
}

// SpawnPickup places a detached item in the world.
func (w *World) SpawnPickup(item *inventory.Item, pos Vec3) *Pickup {
	if item == nil || item.Owner() != nil || item.Quantity() <= 0 {
		return nil
	}
	p := NewPickup(item, pos)
	if w.reach > 0 {
		p.Interactable.Distance = w.reach
	}
	w.pickups[p.ID] = p
	w.logger.Debugf("Spawned pickup %s with %d of %s at %+v.", p.ID, item.Quantity(), item.KindID(), pos)
	w.publish(Event{Type: EventPickupSpawned, Pickup: p})
	return p
}

// RemovePickup deactivates and removes a pickup, clearing the focus of every
// character that looked at it.
func (w *World) RemovePickup(id PickupID) bool {
	p, ok := w.pickups[id]
	if !ok {
		return false
	}
	for _, cid := range p.Interactable.Deactivate() {
		if c, ok := w.characters[cid]; ok && c.focus == p {
			c.focus = nil
			c.interactHeld = false
			c.deadline = time.Time{}
			w.publish(Event{Type: EventFocusChanged, Character: c})
		}
	}
	delete(w.pickups, id)
	w.publish(Event{Type: EventPickupRemoved, Pickup: p})
	return true
}

// Pickup returns a pickup by ID.
func (w *World) Pickup(id PickupID) (*Pickup, bool) {
	p, ok := w.pickups[id]
	return p, ok
}

// Pickups returns every pickup ordered by ID.
func (w *World) Pickups() []*Pickup {
	out := make([]*Pickup, 0, len(w.pickups))
	for _, p := range w.pickups {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Nearest returns the closest active pickup within both the check distance
// and the pickup's own interaction distance.
func (w *World) Nearest(pos Vec3) *Pickup {
	var best *Pickup
	bestDist := math.Inf(1)
	for _, p := range w.Pickups() {
		if !p.Interactable.Active() {
			continue
		}
		d := pos.Distance(p.Position)
		if d > w.checkDistance || d > p.Interactable.Distance {
			continue
		}
		if d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// UpdatePosition moves a character and refreshes its focus.
func (w *World) UpdatePosition(id CharacterID, pos Vec3) (*Character, bool) {
	c, ok := w.characters[id]
	if !ok {
		return nil, false
	}
	c.Position = pos
	w.checkFocus(c)
	return c, true
}

func (w *World) checkFocus(c *Character) {
	var found *Pickup
	if c.CanInteract {
		found = w.Nearest(c.Position)
	}
	if found == c.focus {
		return
	}
	if found == nil {
		w.clearFocus(c)
		return
	}
	w.endInteract(c)
	if c.focus != nil {
		c.focus.Interactable.EndFocus(c)
	}
	c.focus = found
	found.Interactable.BeginFocus(c)
	w.publish(Event{Type: EventFocusChanged, Character: c, Pickup: found})
}

func (w *World) clearFocus(c *Character) {
	if c.focus == nil {
		return
	}
	c.focus.Interactable.EndFocus(c)
	if c.interactHeld {
		w.endInteract(c)
	}
	c.focus = nil
	w.publish(Event{Type: EventFocusChanged, Character: c})
}

// BeginInteract starts interacting with the character's focus. Instant
// interactions complete immediately and are returned; timed ones complete
// in a later Tick.
func (w *World) BeginInteract(id CharacterID, now time.Time) (*Interaction, bool) {
	c, ok := w.characters[id]
	if !ok {
		return nil, false
	}
	w.checkFocus(c)
	c.interactHeld = true
	p := c.focus
	if p == nil || !p.Interactable.BeginInteract(c, now) {
		return nil, true
	}
	if p.Interactable.Time <= 0 {
		return w.interact(c), true
	}
	c.deadline = now.Add(p.Interactable.Time)
	return nil, true
}

// EndInteract cancels a running interaction.
func (w *World) EndInteract(id CharacterID) bool {
	c, ok := w.characters[id]
	if !ok {
		return false
	}
	w.endInteract(c)
	return true
}

func (w *World) endInteract(c *Character) {
	c.interactHeld = false
	c.deadline = time.Time{}
	if c.focus != nil {
		c.focus.Interactable.EndInteract(c)
	}
}

// Tick completes every timed interaction whose deadline passed.
func (w *World) Tick(now time.Time) []Interaction {
	ids := make([]CharacterID, 0, len(w.characters))
	for id, c := range w.characters {
		if !c.deadline.IsZero() && !now.Before(c.deadline) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var done []Interaction
	for _, id := range ids {
		if in := w.interact(w.characters[id]); in != nil {
			done = append(done, *in)
		}
	}
	return done
}

func (w *World) interact(c *Character) *Interaction {
	c.deadline = time.Time{}
	p := c.focus
	if p == nil || !p.Interactable.CanInteract(c) {
		return nil
	}
	res, empty := p.Take(c.Inventory)
	if empty {
		w.RemovePickup(p.ID)
	} else {
		p.Interactable.EndInteract(c)
	}
	if res.Err != nil {
		w.logger.WithField("character", c.ID).Debugf("Take from %s: %s", p.ID, res.Reason)
	}
	return &Interaction{Character: c, Pickup: p, Result: res, Taken: empty}
}

// Take runs the pickup's interaction for a character regardless of focus,
// as long as the pickup is within its interaction distance.
func (w *World) Take(id CharacterID, pid PickupID) (*Interaction, bool) {
	c, ok := w.characters[id]
	if !ok {
		return nil, false
	}
	p, ok := w.pickups[pid]
	if !ok || !c.CanInteract || !p.Interactable.CanInteract(c) || c.Position.Distance(p.Position) > p.Interactable.Distance {
		return nil, false
	}
	res, empty := p.Take(c.Inventory)
	if empty {
		w.RemovePickup(p.ID)
	}
	return &Interaction{Character: c, Pickup: p, Result: res, Taken: empty}, true
}
