// Package sim drives weak collections the way a game host does: objects
// are spawned and registered by group, some are destroyed while still
// referenced, others are dropped and collected, and groups are blocked by
// zeroing their weights and unblocked by restoring them.
package sim

import "fmt"

// Object is a host-owned entity. A destroyed Object stays reachable until
// the host drops it.
type Object struct {
	ID     int
	Group  string
	Weight float64

	destroyed bool
}

// IsDestroyed implements weakc.Destroyable.
func (o *Object) IsDestroyed() bool { return o.destroyed }

// Destroy marks the object destroyed.
func (o *Object) Destroy() { o.destroyed = true }

func (o *Object) String() string {
	return fmt.Sprintf("Object[%d %s w=%.2f]", o.ID, o.Group, o.Weight)
}
