// Package identity infers the clinical field name of an inline-edit control.
// Resolution runs an ordered chain of independent strategies and stops at the
// first one that produces a non-blank name.
package identity

import (
	"strings"

	"github.com/chakravue/fieldeval/internal/layout"
)

const (
	// Unknown is sent to the evaluator when no strategy matches
	Unknown = "unknown"
	// DefaultPlaceholder is the generic placeholder rendered for empty values
	DefaultPlaceholder = "--"
	// DefaultAncestorDepth bounds the ancestor walk
	DefaultAncestorDepth = 4
)

// Context is the information a strategy may inspect
type Context struct {
	// Tag is the explicit identity supplied by the host, if any
	Tag string
	// Placeholder is the field's configured placeholder text
	Placeholder string
	// DefaultPlaceholder is the generic placeholder that carries no meaning
	DefaultPlaceholder string
	// Node is the field's own node in its layout tree
	Node *layout.Node
}

// Strategy resolves an identity or reports no match
type Strategy interface {
	Name() string
	Resolve(c Context) (string, bool)
}

// Result is the outcome of a chain resolution
type Result struct {
	Identity string
	Source   string
	Found    bool
}

// Field returns the name to send to the evaluator
func (r Result) Field() string {
	if !r.Found {
		return Unknown
	}
	return r.Identity
}

// Chain runs strategies in order
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain from strategies, in priority order
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// DefaultChain returns tag, table neighbor, label, placeholder, ancestor walk
func DefaultChain() *Chain {
	return NewChain(
		ExplicitTag{},
		TableNeighbor{},
		EnclosingLabel{},
		Placeholder{},
		AncestorWalk{Depth: DefaultAncestorDepth},
	)
}

// Resolve returns the first match. It is pure given c.
func (ch *Chain) Resolve(c Context) Result {
	if c.DefaultPlaceholder == "" {
		c.DefaultPlaceholder = DefaultPlaceholder
	}
	for _, s := range ch.strategies {
		if id, ok := s.Resolve(c); ok {
			return Result{Identity: id, Source: s.Name(), Found: true}
		}
	}
	return Result{}
}

// Strategies returns the names of the configured strategies in order
func (ch *Chain) Strategies() []string {
	names := make([]string, len(ch.strategies))
	for i, s := range ch.strategies {
		names[i] = s.Name()
	}
	return names
}

// ExplicitTag trusts the host-supplied tag
type ExplicitTag struct{}

func (ExplicitTag) Name() string { return "tag" }

func (ExplicitTag) Resolve(c Context) (string, bool) {
	return nonBlank(c.Tag)
}

// TableNeighbor reads the previous cell in the row, falling back to the
// row's first cell when that is not the field's own cell.
type TableNeighbor struct{}

func (TableNeighbor) Name() string { return "table" }

func (TableNeighbor) Resolve(c Context) (string, bool) {
	if c.Node == nil {
		return "", false
	}
	cell := c.Node.Closest(layout.RoleCell)
	if cell == nil {
		return "", false
	}
	if prev := cell.PrevSibling(); prev != nil {
		if id, ok := nonBlank(prev.TextContent()); ok {
			return id, true
		}
	}
	row := cell.Closest(layout.RoleRow)
	if row == nil {
		return "", false
	}
	first := row.FirstDescendant(layout.RoleCell)
	if first == nil || first == cell {
		return "", false
	}
	return nonBlank(first.TextContent())
}

// EnclosingLabel reads the nearest label wrapping the field
type EnclosingLabel struct{}

func (EnclosingLabel) Name() string { return "label" }

func (EnclosingLabel) Resolve(c Context) (string, bool) {
	if c.Node == nil {
		return "", false
	}
	label := c.Node.Closest(layout.RoleLabel)
	if label == nil {
		return "", false
	}
	return nonBlank(label.TextContent())
}

// Placeholder uses the configured placeholder unless it is the generic one
type Placeholder struct{}

func (Placeholder) Name() string { return "placeholder" }

func (Placeholder) Resolve(c Context) (string, bool) {
	if c.Placeholder == c.DefaultPlaceholder {
		return "", false
	}
	return nonBlank(c.Placeholder)
}

// AncestorWalk climbs up to Depth ancestors looking for nearby text: the
// previous sibling first, then the first label-like descendant.
type AncestorWalk struct {
	Depth int
}

func (AncestorWalk) Name() string { return "ancestor" }

func (a AncestorWalk) Resolve(c Context) (string, bool) {
	if c.Node == nil {
		return "", false
	}
	depth := a.Depth
	if depth <= 0 {
		depth = DefaultAncestorDepth
	}

	ancestor := c.Node.Parent()
	for i := 0; i < depth && ancestor != nil; i++ {
		if prev := ancestor.PrevSibling(); prev != nil {
			if id, ok := nonBlank(prev.TextContent()); ok {
				return id, true
			}
		}
		candidate := ancestor.FirstDescendant(
			layout.RoleParagraph, layout.RoleSpan, layout.RoleContainer, layout.RoleLabel)
		if candidate != nil {
			if id, ok := nonBlank(candidate.TextContent()); ok {
				return id, true
			}
		}
		ancestor = ancestor.Parent()
	}
	return "", false
}

func nonBlank(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
