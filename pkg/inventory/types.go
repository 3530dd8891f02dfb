// Package inventory implements a fixed-size grid inventory. Items occupy a
// rectangular footprint of cells, stack up to a per-kind limit and may be
// rotated. Weight is bounded by a container capacity.
package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// KindID identifies an item kind. Two items stack only when their kinds match.
type KindID string

// InstanceID identifies a single item instance (a stack) across replicas.
type InstanceID string

// OwnerID represents an application-defined owner identifier.
// Can be user id, character id, etc.
type OwnerID string

// RegistryID is a numeric handle suitable for compact storage (e.g. databases).
// IDs start at 1 and increment as new kinds are registered unless explicitly
// provided via Kind.NumericID.
type RegistryID int64

// Tile represents a grid coordinate (x, y) with origin at top-left.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size describes a rectangular footprint in cells.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rotated returns the footprint with width and height swapped.
func (s Size) Rotated() Size {
	return Size{Width: s.Height, Height: s.Width}
}

func (s Size) normalized() Size {
	if s.Width <= 0 {
		s.Width = 1
	}
	if s.Height <= 0 {
		s.Height = 1
	}
	return s
}

// Rarity grades an item kind for presentation.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityVeryRare
	RarityLegendary
)

// String returns a human-readable representation of the rarity.
func (r Rarity) String() string {
	switch r {
	case RarityCommon:
		return "Common"
	case RarityUncommon:
		return "Uncommon"
	case RarityRare:
		return "Rare"
	case RarityVeryRare:
		return "Very Rare"
	case RarityLegendary:
		return "Legendary"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the rarity by name.
func (r Rarity) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts a rarity name in any case, or its ordinal.
func (r *Rarity) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(string(b)))
	switch s {
	case "common", "":
		*r = RarityCommon
	case "uncommon":
		*r = RarityUncommon
	case "rare":
		*r = RarityRare
	case "veryrare":
		*r = RarityVeryRare
	case "legendary":
		*r = RarityLegendary
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < int(RarityCommon) || n > int(RarityLegendary) {
			return fmt.Errorf("inventory: unknown rarity %q", string(b))
		}
		*r = Rarity(n)
	}
	return nil
}

// DefaultMaxStackSize is used for stackable kinds that do not set a limit.
const DefaultMaxStackSize = 2

// Kind captures the static properties shared by every unit of an item type.
type Kind struct {
	ID            KindID            `json:"id" yaml:"id"`
	NumericID     RegistryID        `json:"numericId,omitempty" yaml:"numeric_id"`
	DisplayName   string            `json:"displayName,omitempty" yaml:"display_name"`
	Description   string            `json:"description,omitempty" yaml:"description"`
	UseActionText string            `json:"useActionText,omitempty" yaml:"use_action_text"`
	Category      string            `json:"category,omitempty" yaml:"category"`
	Rarity        Rarity            `json:"rarity,omitempty" yaml:"rarity"`
	Weight        float64           `json:"weight,omitempty" yaml:"weight"`
	Size          Size              `json:"size" yaml:"size"`
	Stackable     bool              `json:"stackable,omitempty" yaml:"stackable"`
	MaxStackSize  int               `json:"maxStackSize,omitempty" yaml:"max_stack_size"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes"`
}

// StackLimit returns the maximum quantity a single stack of this kind holds.
func (k *Kind) StackLimit() int {
	if k == nil || !k.Stackable {
		return 1
	}
	if k.MaxStackSize < DefaultMaxStackSize {
		return DefaultMaxStackSize
	}
	return k.MaxStackSize
}

// Name returns the display name, falling back to the kind ID.
func (k *Kind) Name() string {
	if k == nil {
		return ""
	}
	if k.DisplayName != "" {
		return k.DisplayName
	}
	return string(k.ID)
}

// Authority reports whether the caller may mutate inventory state. Exactly
// one instance of a container is authoritative; the rest are replicas.
type Authority interface {
	HasAuthority() bool
}

// AuthorityFunc adapts a plain function to the Authority interface.
type AuthorityFunc func() bool

// HasAuthority implements Authority.
func (f AuthorityFunc) HasAuthority() bool { return f() }

// Authoritative is an Authority that always allows mutation.
var Authoritative Authority = AuthorityFunc(func() bool { return true })

// Replica is an Authority that never allows mutation.
var Replica Authority = AuthorityFunc(func() bool { return false })
