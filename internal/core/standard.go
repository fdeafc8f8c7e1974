package core

import (
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/tree"
)

// Standard signal names installed on every adopted node.
const (
	SigCreateComponent = "create_component"
	SigDeleteComponent = "delete_component"
	SigMoveComponent   = "move_component"
	SigRenameComponent = "rename_component"
	SigCreateLink      = "create_link"
	SigListTree        = "list_tree"
	SigListSignals     = "list_signals"
	SigConfigure       = "configure"
	SigOptions         = "options"
)

// Tree change names carried by tree_updated events.
const (
	ChangeCreated = "created"
	ChangeDeleted = "deleted"
	ChangeMoved   = "moved"
	ChangeRenamed = "renamed"
)

type binding struct {
	name string
	desc string
	h    func(n *tree.Node) signal.Handler
}

func (c *Core) standardBindings() []binding {
	return []binding{
		{SigCreateComponent, "create a child (options: name, atype, unique)", c.createComponent},
		{SigDeleteComponent, "delete this component and its children", c.deleteComponent},
		{SigMoveComponent, "move this component under path", c.moveComponent},
		{SigRenameComponent, "rename this component", c.renameComponent},
		{SigCreateLink, "create a link child (options: name, target)", c.createLink},
		{SigListTree, "list this subtree", c.listTree},
		{SigListSignals, "list the signals of this component", c.listSignals},
		{SigConfigure, "set properties from options", c.configure},
		{SigOptions, "read properties", c.options},
	}
}

// linkBindings are the signals a link answers for itself; everything else
// goes to its target.
func (c *Core) linkBindings() []binding {
	return []binding{
		{SigDeleteComponent, "delete this link; the target is kept", c.deleteComponent},
		{SigMoveComponent, "move this link under path", c.moveComponent},
		{SigRenameComponent, "rename this link", c.renameComponent},
		{SigOptions, "read link properties", c.options},
	}
}

// Adopt installs the standard signals on n and its descendants. Signals a
// node already binds are left alone. Callers hold the core lock or own n
// exclusively.
func (c *Core) Adopt(n *tree.Node) {
	walkSubtree(n, func(cur *tree.Node) {
		bindings := c.standardBindings()
		if cur.IsLink() {
			bindings = c.linkBindings()
			cur.Properties().SetString("target", cur.Target())
		}
		for _, b := range bindings {
			if cur.Signals().Has(b.name) {
				continue
			}
			cur.Signals().MustRegister(b.name, b.desc, b.h(cur))
		}
	})
}

func walkSubtree(n *tree.Node, fn func(*tree.Node)) {
	fn(n)
	if n.IsLink() {
		return
	}
	for _, child := range n.Children() {
		walkSubtree(child, fn)
	}
}

func (c *Core) createComponent(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		name, err := req.Options.String("name")
		if err != nil {
			return nil, err
		}
		atype, err := req.Options.StringOr("atype", "")
		if err != nil {
			return nil, err
		}
		unique, err := req.Options.BoolOr("unique", false)
		if err != nil {
			return nil, err
		}
		if unique {
			dst, err := n.Deref()
			if err != nil {
				return nil, err
			}
			name = c.tree.UniqueName(dst, name)
		}
		child, err := c.attachNew(n, name, atype)
		if err != nil {
			return nil, err
		}
		reply := signal.NewReply(req)
		reply.Options.SetString("path", child.Path())
		reply.Options.SetString("type", child.TypeName())
		c.treeUpdated(child.Path(), ChangeCreated)
		return reply, nil
	}
}

// attachNew builds (or plainly creates) a child of parent and adopts it.
func (c *Core) attachNew(parent *tree.Node, name, atype string) (*tree.Node, error) {
	if atype == "" {
		child, err := c.tree.CreateChild(parent, name)
		if err != nil {
			return nil, err
		}
		c.Adopt(child)
		return child, nil
	}
	child, err := c.builders.Build(atype, name)
	if err != nil {
		return nil, err
	}
	if err := c.tree.Attach(parent, child); err != nil {
		return nil, err
	}
	c.Adopt(child)
	return child, nil
}

func (c *Core) deleteComponent(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		if n == c.tree.Root() || n == c.server {
			return nil, nodeerr.New(nodeerr.BadArgument, SigDeleteComponent, "%s cannot be deleted", n.Path())
		}
		path := n.Path()
		if err := c.tree.Detach(n); err != nil {
			return nil, err
		}
		reply := signal.NewReply(req)
		reply.Options.SetString("path", path)
		c.treeUpdated(path, ChangeDeleted)
		return reply, nil
	}
}

func (c *Core) moveComponent(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		dest, err := req.Options.String("path")
		if err != nil {
			return nil, err
		}
		if n == c.server {
			return nil, nodeerr.New(nodeerr.BadArgument, SigMoveComponent, "%s cannot be moved", n.Path())
		}
		parent, err := c.tree.RetrieveChecked(dest)
		if err != nil {
			return nil, err
		}
		old := n.Path()
		if err := c.tree.Move(n, parent); err != nil {
			return nil, err
		}
		reply := signal.NewReply(req)
		reply.Options.SetString("path", n.Path())
		reply.Options.SetString("previous", old)
		if old != n.Path() {
			c.treeUpdated(n.Path(), ChangeMoved)
		}
		return reply, nil
	}
}

func (c *Core) renameComponent(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		name, err := req.Options.String("name")
		if err != nil {
			return nil, err
		}
		if n == c.server {
			return nil, nodeerr.New(nodeerr.BadArgument, SigRenameComponent, "%s cannot be renamed", n.Path())
		}
		old := n.Path()
		if err := c.tree.Rename(n, name); err != nil {
			return nil, err
		}
		reply := signal.NewReply(req)
		reply.Options.SetString("path", n.Path())
		reply.Options.SetString("previous", old)
		if old != n.Path() {
			c.treeUpdated(n.Path(), ChangeRenamed)
		}
		return reply, nil
	}
}

func (c *Core) createLink(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		name, err := req.Options.String("name")
		if err != nil {
			return nil, err
		}
		target, err := req.Options.String("target")
		if err != nil {
			return nil, err
		}
		link, err := c.tree.AddLink(n, name, target)
		if err != nil {
			return nil, err
		}
		c.Adopt(link)
		reply := signal.NewReply(req)
		reply.Options.SetString("path", link.Path())
		reply.Options.SetString("target", link.Target())
		c.treeUpdated(link.Path(), ChangeCreated)
		return reply, nil
	}
}

func (c *Core) listTree(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		reply := signal.NewReply(req)
		describe(reply, n)
		return reply, nil
	}
}

// describe fills f with n and, for non-links, one subframe per child.
func describe(f *signal.Frame, n *tree.Node) {
	f.Options.SetString("path", n.Path())
	f.Options.SetString("type", n.TypeName())
	f.Options.SetString("kind", n.Kind().String())
	if n.IsLink() {
		f.Options.SetString("target", n.Target())
		return
	}
	for _, child := range n.Children() {
		sub := &signal.Frame{Name: child.Name()}
		describe(sub, child)
		f.AddSubframe(sub)
	}
}

func (c *Core) listSignals(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		infos, err := signalsOf(n)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(infos))
		descs := make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name)
			descs = append(descs, info.Description)
		}
		reply := signal.NewReply(req)
		reply.Options.SetStrings("names", names)
		reply.Options.SetStrings("descriptions", descs)
		return reply, nil
	}
}

// configure merges request options into properties.
func (c *Core) configure(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		if err := mergeProperties(SigConfigure, n.Properties(), &req.Options); err != nil {
			return nil, err
		}
		reply := signal.NewReply(req)
		reply.Options.SetStrings("changed", req.Options.Names())
		return reply, nil
	}
}

// mergeProperties copies src into props. Integers widen into existing float
// properties; any other type change rejects the whole set.
func mergeProperties(op string, props, src *signal.Options) error {
	staged := signal.NewOptions()
	var bad error
	src.Range(func(name string, v signal.Value) bool {
		cur, ok := props.Get(name)
		if ok && cur.Type != v.Type {
			switch {
			case cur.Type == signal.TypeFloat && v.Type == signal.TypeInt:
				v = signal.FloatValue(float64(v.Int))
			case cur.Type == signal.TypeFloat && v.Type == signal.TypeUint:
				v = signal.FloatValue(float64(v.Uint))
			default:
				bad = nodeerr.New(nodeerr.BadArgument, op, "property %q is %s, got %s", name, cur.Type, v.Type)
				return false
			}
		}
		staged.Set(name, v)
		return true
	})
	if bad != nil {
		return bad
	}
	props.Merge(staged)
	return nil
}

func (c *Core) options(n *tree.Node) signal.Handler {
	return func(req *signal.Frame) (*signal.Frame, error) {
		reply := signal.NewReply(req)
		reply.Options = *n.Properties().Clone()
		return reply, nil
	}
}
