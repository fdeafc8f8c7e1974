package components

import "github.com/danmuck/nodectl/internal/tree"

// Group holds children only; it has no signals beyond the standard set.
type Group struct{}

func NewGroupNode(name string) *tree.Node {
	return tree.NewBuilt(name, TypeGroup, &Group{})
}
