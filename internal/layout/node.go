// Package layout models the visual neighborhood of an inline-edit field.
// A tree of role-tagged nodes stands in for the rendered markup around the
// control so identity can be inferred without a rendering substrate.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

// Role classifies a node the way the markup around a field would
type Role string

const (
	RoleContainer Role = "container"
	RoleRow       Role = "row"
	RoleCell      Role = "cell"
	RoleLabel     Role = "label"
	RoleParagraph Role = "paragraph"
	RoleSpan      Role = "span"
	RoleField     Role = "field"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleContainer, RoleRow, RoleCell, RoleLabel, RoleParagraph, RoleSpan, RoleField:
		return true
	}
	return false
}

var (
	ErrNoFieldNode        = errors.New("layout has no field node")
	ErrMultipleFieldNodes = errors.New("layout has more than one field node")
	ErrUnknownRole        = errors.New("unknown layout role")
)

// Node is one element of a layout tree. Nodes are immutable once built.
type Node struct {
	role     Role
	text     string
	parent   *Node
	children []*Node
	index    int
}

// New creates a node and adopts children in order.
// A node can belong to only one tree.
func New(role Role, text string, children ...*Node) *Node {
	n := &Node{role: role, text: text}
	for _, c := range children {
		if c == nil {
			continue
		}
		if c.parent != nil {
			panic("layout: node already has a parent")
		}
		c.parent = n
		c.index = len(n.children)
		n.children = append(n.children, c)
	}
	return n
}

// Detached returns a field node with no surrounding context
func Detached() *Node {
	return New(RoleField, "")
}

func (n *Node) Role() Role    { return n.role }
func (n *Node) Text() string  { return n.text }
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// PrevSibling returns the node immediately before n under the same parent
func (n *Node) PrevSibling() *Node {
	if n.parent == nil || n.index == 0 {
		return nil
	}
	return n.parent.children[n.index-1]
}

// Closest walks from n (inclusive) toward the root and returns the first
// node with the given role.
func (n *Node) Closest(role Role) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.role == role {
			return cur
		}
	}
	return nil
}

// FirstDescendant returns the first descendant in pre-order whose role is
// one of roles. n itself is not considered.
func (n *Node) FirstDescendant(roles ...Role) *Node {
	for _, c := range n.children {
		for _, r := range roles {
			if c.role == r {
				return c
			}
		}
		if found := c.FirstDescendant(roles...); found != nil {
			return found
		}
	}
	return nil
}

// TextContent joins the text of n and all its descendants, trimmed
func (n *Node) TextContent() string {
	var parts []string
	n.collect(&parts)
	return strings.Join(parts, " ")
}

func (n *Node) collect(parts *[]string) {
	if t := strings.TrimSpace(n.text); t != "" {
		*parts = append(*parts, t)
	}
	for _, c := range n.children {
		c.collect(parts)
	}
}

// Root returns the top of the tree containing n
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Path returns the child indexes leading from the root to n. Comparing
// paths lexicographically yields document order.
func (n *Node) Path() []int {
	var rev []int
	for cur := n; cur.parent != nil; cur = cur.parent {
		rev = append(rev, cur.index)
	}
	path := make([]int, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = idx
	}
	return path
}

// Spec is the wire form of a layout tree. Exactly one node carries Field.
type Spec struct {
	Role     Role   `json:"role,omitempty"`
	Text     string `json:"text,omitempty"`
	Field    bool   `json:"field,omitempty"`
	Children []Spec `json:"children,omitempty"`
}

// Build materializes spec and returns the root together with the field node
func Build(spec Spec) (root, field *Node, err error) {
	var fields []*Node
	root, err = build(spec, &fields)
	if err != nil {
		return nil, nil, err
	}
	switch len(fields) {
	case 0:
		return nil, nil, ErrNoFieldNode
	case 1:
		return root, fields[0], nil
	default:
		return nil, nil, fmt.Errorf("%w: found %d", ErrMultipleFieldNodes, len(fields))
	}
}

func build(spec Spec, fields *[]*Node) (*Node, error) {
	role := spec.Role
	if spec.Field {
		if role != "" && role != RoleField {
			return nil, fmt.Errorf("field node declared with role %q", role)
		}
		role = RoleField
	}
	if role == "" {
		role = RoleContainer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	children := make([]*Node, 0, len(spec.Children))
	for _, cs := range spec.Children {
		c, err := build(cs, fields)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	n := New(role, spec.Text, children...)
	if spec.Field {
		*fields = append(*fields, n)
	}
	return n, nil
}
