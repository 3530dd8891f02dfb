package inventory

import "fmt"

// AddOutcome tags the result of an insertion or move.
type AddOutcome int

const (
	NoneAdded AddOutcome = iota
	SomeAdded
	AllAdded
)

// String returns a human-readable representation of the outcome.
func (o AddOutcome) String() string {
	switch o {
	case NoneAdded:
		return "NoneAdded"
	case SomeAdded:
		return "SomeAdded"
	case AllAdded:
		return "AllAdded"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the outcome by name.
func (o AddOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// AddResult describes what an insertion or move did.
type AddResult struct {
	Outcome AddOutcome `json:"outcome"`
	// Requested is the quantity the caller tried to place.
	Requested int `json:"requested"`
	// Given is the quantity actually placed or merged. Maybe 10 were
	// requested but only 8 fit because of weight.
	Given int `json:"given"`
	// Item is the stack most recently placed or merged into.
	Item *Item `json:"-"`
	// Reason is a message suitable for the end user.
	Reason string `json:"reason,omitempty"`
	// Err is one of the package sentinels when not everything was placed.
	Err error `json:"-"`
}

func addedNone(requested int, err error, reason string) AddResult {
	return AddResult{Outcome: NoneAdded, Requested: requested, Err: err, Reason: reason}
}

func addedSome(item *Item, requested, given int, err error, reason string) AddResult {
	return AddResult{Outcome: SomeAdded, Requested: requested, Given: given, Item: item, Err: err, Reason: reason}
}

func addedAll(item *Item, requested int) AddResult {
	return AddResult{Outcome: AllAdded, Requested: requested, Given: requested, Item: item}
}

// partial builds the result for a placement that stopped before the whole
// quantity was placed.
func partial(item *Item, requested, given int, err error, reason string) AddResult {
	if given <= 0 {
		return addedNone(requested, err, reason)
	}
	return addedSome(item, requested, given, err, reason)
}

func fullMessage(kind *Kind) string {
	return fmt.Sprintf("Couldn't add %s to Inventory. Inventory is full.", kind.Name())
}
