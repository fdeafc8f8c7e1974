package core

import (
	"fmt"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
)

// Message levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event signal names.
const (
	EventMessage     = "message"
	EventTreeUpdated = "tree_updated"
)

func validLevel(level string) bool {
	switch level {
	case LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// Message sends a message event from the server component to clientID, or to
// every client when clientID is empty. It returns how many sessions took it.
func (c *Core) Message(clientID, level, text string) (int, error) {
	return c.message(c.ServerPath(), clientID, level, text)
}

func (c *Core) message(sender, clientID, level, text string) (int, error) {
	if !validLevel(level) {
		return 0, nodeerr.New(nodeerr.BadArgument, "core.Message", "unknown level %q", level)
	}
	f := signal.NewEvent(sender, EventMessage)
	f.Options.SetString("level", level)
	f.Options.SetString("text", text)
	if clientID == "" {
		return c.notify().Broadcast(f), nil
	}
	f.ClientID = clientID
	if !c.notify().Send(clientID, f) {
		return 0, nil
	}
	return 1, nil
}

// ClientConnected greets a new session. It is registered as the transport's
// connect hook.
func (c *Core) ClientConnected(clientID string) {
	c.mu.Lock()
	root, sender := c.tree.Root().Path(), c.server.Path()
	c.mu.Unlock()
	text := fmt.Sprintf("Welcome to nodectl, serving %s", root)
	f := signal.NewEvent(sender, EventMessage)
	f.ClientID = clientID
	f.Options.SetString("level", LevelInfo)
	f.Options.SetString("text", text)
	f.Options.SetString("client_id", clientID)
	c.notify().Send(clientID, f)
}

// ClientDisconnected is the transport's disconnect hook.
func (c *Core) ClientDisconnected(clientID string) {
	c.log.Debug().Str("client_id", clientID).Msg("core client gone")
}

// treeUpdated broadcasts a structural change. Called with the core lock held;
// Broadcast only enqueues.
func (c *Core) treeUpdated(path, change string) {
	f := signal.NewEvent(c.server.Path(), EventTreeUpdated)
	f.Options.SetString("path", path)
	f.Options.SetString("change", change)
	c.notify().Broadcast(f)
}
