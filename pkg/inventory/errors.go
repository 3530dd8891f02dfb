package inventory

import "errors"

var (
	// ErrInvalidReference reports a nil item, a foreign item or an unsized grid.
	ErrInvalidReference = errors.New("inventory: invalid reference")
	// ErrOutOfBounds reports a tile outside the grid.
	ErrOutOfBounds = errors.New("inventory: tile out of bounds")
	// ErrCapacityExceeded reports that weight or stack limits stopped the operation.
	ErrCapacityExceeded = errors.New("inventory: capacity exceeded")
	// ErrNoSpaceAvailable reports that no footprint fits after scanning both rotations.
	ErrNoSpaceAvailable = errors.New("inventory: no space available")
	// ErrNotAuthoritative reports a mutation attempted on a replica.
	ErrNotAuthoritative = errors.New("inventory: not authoritative")
	// ErrUnknownKind reports a kind missing from the registry.
	ErrUnknownKind = errors.New("inventory: unknown item kind")
)
