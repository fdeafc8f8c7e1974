package tree

import (
	"fmt"
	"strings"

	"github.com/danmuck/nodectl/internal/nodeerr"
)

// Registry owns the component tree and a flat path index over it.
//
// Every structural mutator keeps the index in step for the whole affected
// subtree. Registry is not locked; callers serialize access.
type Registry struct {
	root  *Node
	index map[string]*Node
}

// NewRegistry creates a tree whose root is a plain node called rootName.
func NewRegistry(rootName string) (*Registry, error) {
	if err := ValidName(rootName); err != nil {
		return nil, err
	}
	r := &Registry{
		root:  NewNode(rootName),
		index: make(map[string]*Node),
	}
	r.root.reg = r
	r.index[r.root.Path()] = r.root
	return r, nil
}

func (r *Registry) Root() *Node { return r.root }

// Len returns the number of indexed nodes.
func (r *Registry) Len() int { return len(r.index) }

func (r *Registry) key(path string) (string, error) {
	clean, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	if clean == RootAlias {
		return r.root.Path(), nil
	}
	return clean, nil
}

// Retrieve returns the node indexed at path. It never fails loudly.
func (r *Registry) Retrieve(path string) (*Node, bool) {
	key, err := r.key(path)
	if err != nil {
		return nil, false
	}
	n, ok := r.index[key]
	return n, ok
}

// RetrieveChecked returns a non-nil node or InvalidPath.
func (r *Registry) RetrieveChecked(path string) (*Node, error) {
	key, err := r.key(path)
	if err != nil {
		return nil, err
	}
	n, ok := r.index[key]
	if !ok || n == nil {
		return nil, nodeerr.New(nodeerr.InvalidPath, "tree.Retrieve", "no component at %s", key)
	}
	return n, nil
}

// RetrieveCapable resolves path through links and returns the node only when
// it carries the capability tag.
func (r *Registry) RetrieveCapable(path, capability string) (*Node, bool) {
	n, err := r.RetrieveCapableChecked(path, capability)
	return n, err == nil
}

// RetrieveCapableChecked is RetrieveCapable with InvalidPath, BrokenLink and
// CastingFailed errors.
func (r *Registry) RetrieveCapableChecked(path, capability string) (*Node, error) {
	n, err := r.resolveChecked(path)
	if err != nil {
		return nil, err
	}
	if !n.HasCapability(capability) {
		return nil, nodeerr.New(
			nodeerr.CastingFailed,
			"tree.Retrieve",
			"%s (%s) lacks capability %q",
			n.Path(),
			n.typeName,
			capability,
		)
	}
	return n, nil
}

func (r *Registry) resolveChecked(path string) (*Node, error) {
	n, err := r.RetrieveChecked(path)
	if err != nil {
		return nil, err
	}
	return n.Deref()
}

// RetrieveAs returns the typed payload of the node at path, following links.
func RetrieveAs[T any](r *Registry, path string) (T, bool) {
	v, err := RetrieveCheckedAs[T](r, path)
	return v, err == nil
}

// RetrieveCheckedAs is RetrieveAs reporting why the view failed.
func RetrieveCheckedAs[T any](r *Registry, path string) (T, error) {
	var zero T
	n, err := r.resolveChecked(path)
	if err != nil {
		return zero, err
	}
	v, ok := As[T](n)
	if !ok {
		return zero, nodeerr.New(
			nodeerr.CastingFailed,
			"tree.Retrieve",
			"%s (%s) is not %T",
			n.Path(),
			n.typeName,
			zero,
		)
	}
	return v, nil
}

// Exists checks the index only.
func (r *Registry) Exists(path string) bool {
	_, ok := r.Retrieve(path)
	return ok
}

// ChangeComponentPath inserts or updates the index entry for path.
func (r *Registry) ChangeComponentPath(path string, n *Node) error {
	if n == nil {
		return nodeerr.New(nodeerr.BadArgument, "tree.ChangeComponentPath", "nil node for %s", path)
	}
	key, err := r.key(path)
	if err != nil {
		return err
	}
	r.index[key] = n
	n.reg = r
	return nil
}

// RemoveComponentPath drops the index entry for path.
func (r *Registry) RemoveComponentPath(path string) {
	key, err := r.key(path)
	if err != nil {
		return
	}
	delete(r.index, key)
}

func (r *Registry) indexSubtree(n *Node) {
	n.walk(func(cur *Node) bool {
		_ = r.ChangeComponentPath(cur.Path(), cur)
		return true
	})
}

func (r *Registry) unindexSubtree(n *Node) {
	n.walk(func(cur *Node) bool {
		r.RemoveComponentPath(cur.Path())
		return true
	})
}

func (r *Registry) owns(n *Node) bool {
	if n == nil || n.reg != r {
		return false
	}
	indexed, ok := r.index[n.Path()]
	return ok && indexed == n
}

// container resolves parent through links so children land on the target.
func (r *Registry) container(op string, parent *Node) (*Node, error) {
	if !r.owns(parent) {
		return nil, nodeerr.New(nodeerr.InvalidPath, op, "parent is not part of this tree")
	}
	return parent.Deref()
}

// Attach adds a detached subtree under parent and indexes every node in it.
func (r *Registry) Attach(parent, child *Node) error {
	const op = "tree.Attach"
	if child == nil {
		return nodeerr.New(nodeerr.BadArgument, op, "nil child")
	}
	if child.parent != nil || child == r.root || child.reg != nil {
		return nodeerr.New(nodeerr.BadArgument, op, "%s is already attached", child.name)
	}
	if err := ValidName(child.name); err != nil {
		return err
	}
	dst, err := r.container(op, parent)
	if err != nil {
		return err
	}
	if _, taken := dst.byName[child.name]; taken {
		return nodeerr.New(nodeerr.BadArgument, op, "%s already exists", Join(dst.Path(), child.name))
	}
	dst.addChild(child)
	r.indexSubtree(child)
	return nil
}

// Detach removes n and its descendants from the tree and the index. The
// subtree stays intact and can be attached again.
func (r *Registry) Detach(n *Node) error {
	const op = "tree.Detach"
	if !r.owns(n) {
		return nodeerr.New(nodeerr.InvalidPath, op, "node is not part of this tree")
	}
	if n == r.root {
		return nodeerr.New(nodeerr.BadArgument, op, "cannot detach the root")
	}
	r.unindexSubtree(n)
	n.parent.removeChild(n)
	n.walk(func(cur *Node) bool {
		cur.reg = nil
		return true
	})
	return nil
}

// Destroy detaches the node at path. Links pointing into the subtree are left
// in place and report BrokenLink until the path is occupied again.
func (r *Registry) Destroy(path string) error {
	n, err := r.RetrieveChecked(path)
	if err != nil {
		return err
	}
	return r.Detach(n)
}

// Move reparents n under newParent, re-deriving every descendant path.
func (r *Registry) Move(n, newParent *Node) error {
	const op = "tree.Move"
	if !r.owns(n) {
		return nodeerr.New(nodeerr.InvalidPath, op, "node is not part of this tree")
	}
	if n == r.root {
		return nodeerr.New(nodeerr.BadArgument, op, "cannot move the root")
	}
	dst, err := r.container(op, newParent)
	if err != nil {
		return err
	}
	if dst == n.parent {
		return nil
	}
	if n.isAncestorOf(dst) {
		return nodeerr.New(nodeerr.BadArgument, op, "cannot move %s below itself", n.Path())
	}
	if _, taken := dst.byName[n.name]; taken {
		return nodeerr.New(nodeerr.BadArgument, op, "%s already exists", Join(dst.Path(), n.name))
	}
	r.unindexSubtree(n)
	n.parent.removeChild(n)
	dst.addChild(n)
	r.indexSubtree(n)
	return nil
}

// Rename changes the name of n in place, keeping its sibling position.
func (r *Registry) Rename(n *Node, newName string) error {
	const op = "tree.Rename"
	if !r.owns(n) {
		return nodeerr.New(nodeerr.InvalidPath, op, "node is not part of this tree")
	}
	if err := ValidName(newName); err != nil {
		return err
	}
	if newName == n.name {
		return nil
	}
	if n.parent != nil {
		if _, taken := n.parent.byName[newName]; taken {
			return nodeerr.New(nodeerr.BadArgument, op, "%s already exists", Join(n.parent.Path(), newName))
		}
	}
	r.unindexSubtree(n)
	if n.parent != nil {
		delete(n.parent.byName, n.name)
		n.parent.byName[newName] = n
	}
	n.name = newName
	r.indexSubtree(n)
	return nil
}

// CreateChild attaches a new plain node called name under parent.
func (r *Registry) CreateChild(parent *Node, name string) (*Node, error) {
	child := NewNode(name)
	if err := r.Attach(parent, child); err != nil {
		return nil, err
	}
	return child, nil
}

// AddLink attaches a link called name under parent pointing at target. The
// target does not need to exist yet.
func (r *Registry) AddLink(parent *Node, name, target string) (*Node, error) {
	clean, err := r.key(target)
	if err != nil {
		return nil, err
	}
	link := NewLink(name, clean)
	if err := r.Attach(parent, link); err != nil {
		return nil, err
	}
	return link, nil
}

// ChildrenOf lists the children of n, following links to their target.
func (r *Registry) ChildrenOf(n *Node) ([]*Node, error) {
	target, err := n.Deref()
	if err != nil {
		return nil, err
	}
	return target.Children(), nil
}

// UniqueName returns base when no child of parent uses it, else the first
// free base_N.
func (r *Registry) UniqueName(parent *Node, base string) string {
	if parent == nil {
		return base
	}
	if _, taken := parent.byName[base]; !taken {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if _, taken := parent.byName[candidate]; !taken {
			return candidate
		}
	}
}

// Walk visits every node depth first in insertion order until fn returns false.
func (r *Registry) Walk(fn func(*Node) bool) {
	r.root.walk(fn)
}

// Toc lists every path depth first in insertion order.
func (r *Registry) Toc() []string {
	out := make([]string, 0, len(r.index))
	r.Walk(func(n *Node) bool {
		out = append(out, n.Path())
		return true
	})
	return out
}

// ListToc renders Toc one path per line, marking links with their target.
func (r *Registry) ListToc() string {
	var b strings.Builder
	r.Walk(func(n *Node) bool {
		b.WriteString(n.Path())
		if n.IsLink() {
			b.WriteString(" -> ")
			b.WriteString(n.target)
		}
		b.WriteByte('\n')
		return true
	})
	return b.String()
}
