package world

import (
	"time"

	"github.com/zyedidia/generic/mapset"
)

const (
	// DefaultInteractionDistance is how close a character must stand to use an interactable.
	DefaultInteractionDistance = 500.0
	// DefaultCheckDistance bounds the proximity search for a character's focus.
	DefaultCheckDistance = 1000.0
)

// Interactable is the part of a world object characters can focus and use.
// A zero Time completes the interaction as soon as it begins.
type Interactable struct {
	NameText      string
	ActionText    string
	Time          time.Duration
	Distance      float64
	AllowMultiple bool

	inactive    bool
	focused     mapset.Set[CharacterID]
	members     mapset.Set[CharacterID]
	interactors []CharacterID
	started     map[CharacterID]time.Time
}

// NewInteractable returns an active interactable with default distance.
func NewInteractable(name, action string) *Interactable {
	return &Interactable{
		NameText:      name,
		ActionText:    action,
		Distance:      DefaultInteractionDistance,
		AllowMultiple: true,
		focused:       mapset.New[CharacterID](),
		members:       mapset.New[CharacterID](),
		started:       make(map[CharacterID]time.Time),
	}
}

// Active reports whether the interactable still accepts characters.
func (i *Interactable) Active() bool { return !i.inactive }

// CanInteract reports whether c may start or complete an interaction.
func (i *Interactable) CanInteract(c *Character) bool {
	if c == nil || i.inactive {
		return false
	}
	busy := !i.AllowMultiple && len(i.interactors) >= 1 && !i.members.Has(c.ID)
	return !busy
}

// BeginFocus marks c as looking at the interactable.
func (i *Interactable) BeginFocus(c *Character) {
	if c == nil || i.inactive {
		return
	}
	i.focused.Put(c.ID)
}

// EndFocus clears c's focus.
func (i *Interactable) EndFocus(c *Character) {
	if c == nil {
		return
	}
	i.focused.Remove(c.ID)
}

// Focused reports whether c is looking at the interactable.
func (i *Interactable) Focused(c *Character) bool {
	return c != nil && i.focused.Has(c.ID)
}

// BeginInteract adds c to the interactors once.
func (i *Interactable) BeginInteract(c *Character, now time.Time) bool {
	if !i.CanInteract(c) {
		return false
	}
	if !i.members.Has(c.ID) {
		i.members.Put(c.ID)
		i.interactors = append(i.interactors, c.ID)
		i.started[c.ID] = now
	}
	return true
}

// EndInteract removes c from the interactors.
func (i *Interactable) EndInteract(c *Character) {
	if c == nil || !i.members.Has(c.ID) {
		return
	}
	i.members.Remove(c.ID)
	delete(i.started, c.ID)
	for n, id := range i.interactors {
		if id == c.ID {
			i.interactors = append(i.interactors[:n], i.interactors[n+1:]...)
			break
		}
	}
}

// Interactors returns the characters currently interacting, oldest first.
func (i *Interactable) Interactors() []CharacterID {
	out := make([]CharacterID, len(i.interactors))
	copy(out, i.interactors)
	return out
}

// Percentage returns how far the oldest interactor has progressed, in [0,1].
func (i *Interactable) Percentage(now time.Time) float64 {
	if len(i.interactors) == 0 || i.Time <= 0 {
		return 0
	}
	start := i.started[i.interactors[0]]
	p := float64(now.Sub(start)) / float64(i.Time)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Deactivate ends every focus and interaction and refuses new ones.
func (i *Interactable) Deactivate() []CharacterID {
	i.inactive = true
	affected := mapset.New[CharacterID]()
	i.focused.Each(func(id CharacterID) { affected.Put(id) })
	for _, id := range i.interactors {
		affected.Put(id)
	}
	i.focused = mapset.New[CharacterID]()
	i.members = mapset.New[CharacterID]()
	i.interactors = nil
	i.started = make(map[CharacterID]time.Time)

	out := make([]CharacterID, 0, affected.Size())
	affected.Each(func(id CharacterID) { out = append(out, id) })
	return out
}
