// Package builder maps component type names to constructors so components
// can be created from a configuration string or a remote request.
package builder

import (
	"sort"
	"strings"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/tree"
)

// Builder constructs one component type.
type Builder struct {
	Description  string
	Capabilities []string
	New          func(name string) *tree.Node
}

// Info describes a registered type for listings.
type Info struct {
	Type         string
	Description  string
	Capabilities []string
}

// Registry stores builders by type name. One instance is created at startup
// and passed to whoever needs to build components.
type Registry struct {
	items map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Builder)}
}

// Register adds a builder. A second registration of the same type fails with
// DuplicateRegistration and the first builder is kept.
func (r *Registry) Register(typeName string, b Builder) error {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return nodeerr.New(nodeerr.BadArgument, "builder.Register", "empty type name")
	}
	if b.New == nil {
		return nodeerr.New(nodeerr.BadArgument, "builder.Register", "type %q has no constructor", typeName)
	}
	if _, ok := r.items[typeName]; ok {
		return nodeerr.New(nodeerr.DuplicateRegistration, "builder.Register", "type %q already registered", typeName)
	}
	r.items[typeName] = b
	return nil
}

// MustRegister panics on registration errors; they are startup mistakes.
func (r *Registry) MustRegister(typeName string, b Builder) {
	if err := r.Register(typeName, b); err != nil {
		panic(err)
	}
}

func (r *Registry) Has(typeName string) bool {
	_, ok := r.items[typeName]
	return ok
}

// Types returns registered types sorted by name.
func (r *Registry) Types() []Info {
	list := make([]Info, 0, len(r.items))
	for name, b := range r.items {
		list = append(list, Info{
			Type:         name,
			Description:  b.Description,
			Capabilities: append([]string(nil), b.Capabilities...),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Type < list[j].Type
	})
	return list
}

// Build constructs an unattached component. The caller attaches it, which
// indexes it and any descendants the constructor created.
func (r *Registry) Build(typeName, name string) (*tree.Node, error) {
	b, ok := r.items[typeName]
	if !ok {
		return nil, nodeerr.New(nodeerr.UnknownType, "builder.Build", "no builder for type %q", typeName)
	}
	if err := tree.ValidName(name); err != nil {
		return nil, err
	}
	n := b.New(name)
	if n == nil {
		return nil, nodeerr.New(nodeerr.HandlerFailed, "builder.Build", "builder for %q returned nil", typeName)
	}
	if n.Name() != name || n.TypeName() != typeName {
		return nil, nodeerr.New(
			nodeerr.HandlerFailed,
			"builder.Build",
			"builder for %q produced %s/%q",
			typeName,
			n.TypeName(),
			n.Name(),
		)
	}
	n.AddCapability(b.Capabilities...)
	return n, nil
}
