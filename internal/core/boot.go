package core

import (
	"fmt"

	"github.com/danmuck/nodectl/internal/config"
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/tree"
)

// Boot creates the configured components in order, then the links. An empty
// parent means the root. Any failure aborts with the offending entry named.
func (c *Core) Boot(components []config.ComponentSpec, links []config.LinkSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, spec := range components {
		parent, err := c.bootParent(spec.Parent)
		if err != nil {
			return fmt.Errorf("components[%d] %s: %w", i, spec.Name, err)
		}
		child, err := c.attachNew(parent, spec.Name, spec.Type)
		if err != nil {
			return fmt.Errorf("components[%d] %s: %w", i, spec.Name, err)
		}
		if err := c.applyProperties(child, spec.Properties); err != nil {
			return fmt.Errorf("components[%d] %s: %w", i, spec.Name, err)
		}
		c.log.Debug().Str("path", child.Path()).Str("type", child.TypeName()).Msg("core boot component")
	}
	for i, spec := range links {
		parent, err := c.bootParent(spec.Parent)
		if err != nil {
			return fmt.Errorf("links[%d] %s: %w", i, spec.Name, err)
		}
		link, err := c.tree.AddLink(parent, spec.Name, spec.Target)
		if err != nil {
			return fmt.Errorf("links[%d] %s: %w", i, spec.Name, err)
		}
		c.Adopt(link)
		c.log.Debug().Str("path", link.Path()).Str("target", link.Target()).Msg("core boot link")
	}
	c.log.Info().Int("nodes", c.tree.Len()).Msg("core boot complete")
	return nil
}

func (c *Core) bootParent(path string) (*tree.Node, error) {
	if path == "" {
		return c.tree.Root(), nil
	}
	return c.tree.RetrieveChecked(path)
}

func (c *Core) applyProperties(n *tree.Node, raw map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	props, err := config.Properties(raw)
	if err != nil {
		return nodeerr.Wrap(nodeerr.BadArgument, "core.Boot", err)
	}
	return mergeProperties("core.Boot", n.Properties(), props)
}
