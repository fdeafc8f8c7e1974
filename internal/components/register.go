package components

import (
	"github.com/danmuck/nodectl/internal/builder"
)

const (
	TypeGroup  = "Group"
	TypeSolver = "Solver"
	TypeStore  = "Store"
)

// Register adds every component type to r.
func Register(r *builder.Registry) error {
	for _, item := range []struct {
		name string
		b    builder.Builder
	}{
		{TypeGroup, builder.Builder{
			Description:  "container for other components",
			Capabilities: []string{"container"},
			New:          NewGroupNode,
		}},
		{TypeSolver, builder.Builder{
			Description:  "solver with iteration and tolerance settings",
			Capabilities: []string{"solver"},
			New:          NewSolverNode,
		}},
		{TypeStore, builder.Builder{
			Description:  "in-memory key/value store",
			Capabilities: []string{"store"},
			New:          NewStoreNode,
		}},
	} {
		if err := r.Register(item.name, item.b); err != nil {
			return err
		}
	}
	return nil
}
