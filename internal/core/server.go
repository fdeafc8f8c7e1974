package core

import (
	"strings"
	"time"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/tree"
)

// Server component signal names.
const (
	SigShutdown    = "shutdown"
	SigListClients = "list_clients"
	SigListTypes   = "list_types"
	SigListToc     = "list_toc"
	SigMessage     = "message"
)

// shutdownGrace lets the shutdown reply reach the requester before sessions
// are closed.
const shutdownGrace = 100 * time.Millisecond

func (c *Core) installServerSignals(n *tree.Node) {
	n.Signals().MustRegister(SigShutdown, "stop the server after replying", c.handleShutdown)
	n.Signals().MustRegister(SigListClients, "list connected clients", c.handleListClients)
	n.Signals().MustRegister(SigListTypes, "list component types that can be created", c.handleListTypes)
	n.Signals().MustRegister(SigListToc, "list every path in the tree", c.handleListToc)
	n.Signals().MustRegister(SigMessage, "send a message (options: level, text, client)", c.handleMessage)
}

func (c *Core) handleShutdown(req *signal.Frame) (*signal.Frame, error) {
	c.notifyMu.RLock()
	stop := c.stop
	c.notifyMu.RUnlock()
	if stop == nil {
		return nil, nodeerr.New(nodeerr.HandlerFailed, SigShutdown, "server is not stoppable")
	}
	c.log.Warn().Str("client_id", req.ClientID).Msg("core shutdown requested")
	time.AfterFunc(shutdownGrace, stop)
	return nil, nil
}

func (c *Core) handleListClients(req *signal.Frame) (*signal.Frame, error) {
	infos := c.notify().ClientInfos()
	ids := make([]string, 0, len(infos))
	addrs := make([]string, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
		addrs = append(addrs, info.RemoteAddr)
	}
	reply := signal.NewReply(req)
	reply.Options.SetStrings("clients", ids)
	reply.Options.SetStrings("addresses", addrs)
	return reply, nil
}

func (c *Core) handleListTypes(req *signal.Frame) (*signal.Frame, error) {
	types := c.builders.Types()
	names := make([]string, 0, len(types))
	descs := make([]string, 0, len(types))
	for _, info := range types {
		names = append(names, info.Type)
		descs = append(descs, info.Description)
	}
	reply := signal.NewReply(req)
	reply.Options.SetStrings("types", names)
	reply.Options.SetStrings("descriptions", descs)
	return reply, nil
}

func (c *Core) handleListToc(req *signal.Frame) (*signal.Frame, error) {
	reply := signal.NewReply(req)
	reply.Options.SetStrings("paths", c.tree.Toc())
	reply.Options.SetString("toc", c.tree.ListToc())
	return reply, nil
}

func (c *Core) handleMessage(req *signal.Frame) (*signal.Frame, error) {
	level, err := req.Options.StringOr("level", LevelInfo)
	if err != nil {
		return nil, err
	}
	text, err := req.Options.String("text")
	if err != nil {
		return nil, err
	}
	client, err := req.Options.StringOr("client", "")
	if err != nil {
		return nil, err
	}
	delivered, err := c.message(c.server.Path(), strings.TrimSpace(client), level, text)
	if err != nil {
		return nil, err
	}
	reply := signal.NewReply(req)
	reply.Options.SetInt("delivered", int64(delivered))
	return reply, nil
}
