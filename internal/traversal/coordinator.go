package traversal

import (
	"go.uber.org/zap"
)

// Observer is notified of traversal steps
type Observer interface {
	Traversed(dir Direction, moved bool)
}

// Coordinator moves edit focus across a Registry
type Coordinator struct {
	registry *Registry
	observer Observer
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator over registry
func NewCoordinator(registry *Registry, observer Observer, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{registry: registry, observer: observer, logger: logger}
}

// Registry returns the underlying registry
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Advance activates the neighbor of fromID in direction dir. The caller
// must have finished committing fromID. Advancing past either end is a
// no-op; there is no wraparound.
func (c *Coordinator) Advance(fromID string, dir Direction) bool {
	next, ok := c.registry.Neighbor(fromID, dir)
	if !ok {
		c.logger.Debug("traversal at boundary",
			zap.String("field_id", fromID),
			zap.Stringer("direction", dir))
		c.observe(dir, false)
		return false
	}

	moved := c.Focus(next.ID())
	c.observe(dir, moved)
	return moved
}

// Focus commits every other entry still editing, then starts editing id.
// It reports whether id entered editing.
func (c *Coordinator) Focus(id string) bool {
	target, ok := c.registry.Get(id)
	if !ok {
		return false
	}

	for _, e := range c.registry.Entries() {
		if e.ID() != id && e.Editing() {
			e.Commit()
		}
	}

	started := target.StartEditing()
	if started {
		c.logger.Debug("field focused", zap.String("field_id", id))
	}
	return started
}

func (c *Coordinator) observe(dir Direction, moved bool) {
	if c.observer != nil {
		c.observer.Traversed(dir, moved)
	}
}
