package tree

import (
	"strings"

	"github.com/danmuck/nodectl/internal/nodeerr"
)

const (
	// RootAlias addresses the root of the tree it is resolved against.
	RootAlias = "."
	// Scheme is an optional prefix accepted on any path.
	Scheme = "cpath:"
)

// ValidName reports whether name can label a node.
func ValidName(name string) error {
	switch {
	case name == "":
		return nodeerr.New(nodeerr.InvalidPath, "tree.ValidName", "empty name")
	case name == "." || name == "..":
		return nodeerr.New(nodeerr.InvalidPath, "tree.ValidName", "reserved name %q", name)
	case strings.Contains(name, "/"):
		return nodeerr.New(nodeerr.InvalidPath, "tree.ValidName", "name %q contains '/'", name)
	case strings.TrimSpace(name) != name:
		return nodeerr.New(nodeerr.InvalidPath, "tree.ValidName", "name %q has surrounding whitespace", name)
	}
	return nil
}

// CleanPath strips the scheme and checks that path is absolute with valid
// segments. The root alias is returned unchanged.
func CleanPath(path string) (string, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), Scheme)
	if path == RootAlias {
		return path, nil
	}
	if !strings.HasPrefix(path, "/") {
		return "", nodeerr.New(nodeerr.InvalidPath, "tree.CleanPath", "path %q is not absolute", path)
	}
	for _, seg := range strings.Split(path[1:], "/") {
		if err := ValidName(seg); err != nil {
			return "", nodeerr.New(nodeerr.InvalidPath, "tree.CleanPath", "bad segment in %q", path)
		}
	}
	return path, nil
}

// Join appends name to an absolute parent path.
func Join(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}
