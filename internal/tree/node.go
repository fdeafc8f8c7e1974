package tree

import (
	"sort"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
)

// Kind is the closed set of node variants.
type Kind uint8

const (
	KindPlain Kind = iota
	KindLink
	KindBuilt
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindLink:
		return "link"
	case KindBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// LinkTypeName is the type name reported by link nodes.
const LinkTypeName = "Link"

// maxLinkHops bounds link chains so a cycle of links reports BrokenLink.
const maxLinkHops = 8

// Node is one component of the tree. Its path is derived from the parent chain.
type Node struct {
	name     string
	kind     Kind
	typeName string
	caps     map[string]struct{}
	impl     any
	target   string

	props   *signal.Options
	signals *signal.Table

	parent   *Node
	children []*Node
	byName   map[string]*Node
	reg      *Registry
}

func newNode(name string, kind Kind) *Node {
	return &Node{
		name:    name,
		kind:    kind,
		caps:    make(map[string]struct{}),
		props:   signal.NewOptions(),
		signals: signal.NewTable(),
		byName:  make(map[string]*Node),
	}
}

// NewNode returns a detached plain node.
func NewNode(name string) *Node {
	return newNode(name, KindPlain)
}

// NewBuilt returns a detached builder-constructed leaf carrying impl as its
// typed payload.
func NewBuilt(name, typeName string, impl any, caps ...string) *Node {
	n := newNode(name, KindBuilt)
	n.typeName = typeName
	n.impl = impl
	for _, c := range caps {
		n.caps[c] = struct{}{}
	}
	return n
}

// NewLink returns a detached link to the absolute path target.
func NewLink(name, target string) *Node {
	n := newNode(name, KindLink)
	n.typeName = LinkTypeName
	n.target = target
	return n
}

func (n *Node) Name() string { return n.name }
func (n *Node) Kind() Kind { return n.kind }
func (n *Node) TypeName() string { return n.typeName }
func (n *Node) IsLink() bool { return n.kind == KindLink }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) Impl() any { return n.impl }

// Target returns the link target path, empty for non-links.
func (n *Node) Target() string { return n.target }

// Properties is the node state read and written by the configure/options signals.
func (n *Node) Properties() *signal.Options { return n.props }

// Signals is the node's handler table.
func (n *Node) Signals() *signal.Table { return n.signals }

// Registry returns the registry the node is attached to, nil when detached.
func (n *Node) Registry() *Registry { return n.reg }

// Path derives the absolute path from the parent chain.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/" + n.name
	}
	return n.parent.Path() + "/" + n.name
}

// Children returns direct children in insertion order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Child returns the direct child called name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.byName[name]
	return c, ok
}

func (n *Node) AddCapability(caps ...string) {
	for _, c := range caps {
		n.caps[c] = struct{}{}
	}
}

func (n *Node) HasCapability(c string) bool {
	_, ok := n.caps[c]
	return ok
}

// Capabilities returns the capability tags sorted.
func (n *Node) Capabilities() []string {
	out := make([]string, 0, len(n.caps))
	for c := range n.caps {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Resolve looks up what n stands for. Non-links resolve to themselves; links
// are looked up through the registry on every call.
func (n *Node) Resolve() (*Node, bool) {
	target, err := n.Deref()
	return target, err == nil
}

// Deref is Resolve reporting BrokenLink when a link target is missing, the
// link is detached, or the chain is longer than the hop limit.
func (n *Node) Deref() (*Node, error) {
	cur := n
	for hop := 0; hop <= maxLinkHops; hop++ {
		if cur.kind != KindLink {
			return cur, nil
		}
		if cur.reg == nil {
			return nil, nodeerr.New(nodeerr.BrokenLink, "tree.Deref", "link %q is detached", cur.name)
		}
		next, ok := cur.reg.Retrieve(cur.target)
		if !ok {
			return nil, nodeerr.New(
				nodeerr.BrokenLink,
				"tree.Deref",
				"link %s points at missing %s",
				cur.Path(),
				cur.target,
			)
		}
		cur = next
	}
	return nil, nodeerr.New(nodeerr.BrokenLink, "tree.Deref", "link chain from %s exceeds %d hops", n.Path(), maxLinkHops)
}

// As returns the typed payload of n.
func As[T any](n *Node) (T, bool) {
	var zero T
	if n == nil {
		return zero, false
	}
	v, ok := n.impl.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

func (n *Node) addChild(c *Node) {
	c.parent = n
	n.children = append(n.children, c)
	n.byName[c.name] = c
}

func (n *Node) removeChild(c *Node) {
	delete(n.byName, c.name)
	for i, cur := range n.children {
		if cur == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	c.parent = nil
}

// walk visits n and its descendants depth first in insertion order.
func (n *Node) walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(fn) {
			return false
		}
	}
	return true
}

func (n *Node) isAncestorOf(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return false
}
