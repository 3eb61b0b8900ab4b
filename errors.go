package weakc

import "errors"

var (
	// ErrNilItem is returned when a nil item is added to a WeakBag.
	ErrNilItem = errors.New("weakc: nil item")
	// ErrNilKey is returned when a nil key is stored in a WeakStrongMap.
	ErrNilKey = errors.New("weakc: nil key")
	// ErrKeyNotFound is returned by WeakStrongMap.Get for keys that are
	// absent, including keys whose target has died.
	ErrKeyNotFound = errors.New("weakc: key not found")
)
