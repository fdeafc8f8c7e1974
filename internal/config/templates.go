package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the starter document for kind.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "nodectl":
		return serverTemplate, nil
	case "minimal":
		return minimalTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// WriteTemplate writes the kind template to path, refusing to replace an
// existing file unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `root_name = "root"
listen_addr = "127.0.0.1:9400"
admin_listen_addr = "127.0.0.1:9401"
cors_origins = ["http://localhost:3000"]
log_level = "info"
max_payload_bytes = 4194304
read_timeout = "0s"
write_timeout = "15s"
send_queue = 64

[[components]]
parent = "/root"
name = "solver"
type = "Solver"

[components.properties]
max_iterations = 250
tolerance = 1e-8

[[components]]
parent = "/root"
name = "tools"
type = "Group"

[[components]]
parent = "/root/tools"
name = "cache"
type = "Store"

[[links]]
parent = "/root/tools"
name = "solver"
target = "/root/solver"
`

const minimalTemplate = `root_name = "root"
listen_addr = "127.0.0.1:9400"
`
