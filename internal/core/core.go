package core

import (
	"strings"
	"sync"
	"time"

	"github.com/danmuck/nodectl/internal/builder"
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/observability"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/transport"
	"github.com/danmuck/nodectl/internal/tree"
	"github.com/rs/zerolog"
)

// ServerComponentName is the child of the root that carries server signals.
const ServerComponentName = "Core"

// Notifier delivers server-initiated frames. transport.Server satisfies it.
type Notifier interface {
	Send(clientID string, f *signal.Frame) bool
	Broadcast(f *signal.Frame) int
	ClientInfos() []transport.ClientInfo
}

type nopNotifier struct{}

func (nopNotifier) Send(string, *signal.Frame) bool     { return false }
func (nopNotifier) Broadcast(*signal.Frame) int         { return 0 }
func (nopNotifier) ClientInfos() []transport.ClientInfo { return nil }

// Core is the single serialization point for the component tree.
type Core struct {
	mu       sync.Mutex
	tree     *tree.Registry
	builders *builder.Registry
	server   *tree.Node

	notifyMu sync.RWMutex
	notifier Notifier
	stop     func()

	log zerolog.Logger
}

// New builds a tree rooted at rootName with the server component attached and
// standard signals installed everywhere.
func New(rootName string, builders *builder.Registry) (*Core, error) {
	if builders == nil {
		builders = builder.NewRegistry()
	}
	reg, err := tree.NewRegistry(rootName)
	if err != nil {
		return nil, err
	}
	c := &Core{
		tree:     reg,
		builders: builders,
		notifier: nopNotifier{},
		log:      observability.ComponentLogger("core"),
	}
	c.server = tree.NewBuilt(ServerComponentName, ServerComponentName, c, "server")
	c.installServerSignals(c.server)
	if err := reg.Attach(reg.Root(), c.server); err != nil {
		return nil, err
	}
	c.Adopt(reg.Root())
	observability.SetTreeNodes(reg.Len())
	return c, nil
}

// SetNotifier routes notifications through n. A nil n drops them.
func (c *Core) SetNotifier(n Notifier) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	c.notifier = n
}

// SetStop installs the function the shutdown signal calls. It runs on its
// own goroutine so the requesting handler can still reply.
func (c *Core) SetStop(fn func()) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.stop = fn
}

func (c *Core) notify() Notifier {
	c.notifyMu.RLock()
	defer c.notifyMu.RUnlock()
	return c.notifier
}

// ServerPath is the path of the server component.
func (c *Core) ServerPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server.Path()
}

// Dispatch resolves req.Target, invokes its signal and always returns a reply.
func (c *Core) Dispatch(req *signal.Frame) *signal.Frame {
	start := time.Now()
	c.mu.Lock()
	reply := c.dispatchLocked(req)
	nodes := c.tree.Len()
	c.mu.Unlock()

	outcome := "ok"
	if reply.IsError() {
		outcome = reply.Error.Kind
	}
	observability.RecordDispatch(req.Signal, outcome, time.Since(start))
	observability.SetTreeNodes(nodes)
	c.log.Debug().
		Str("target", req.Target).
		Str("signal", req.Signal).
		Str("client_id", req.ClientID).
		Str("correlation_id", req.CorrelationID).
		Str("outcome", outcome).
		Msg("core.Dispatch")
	return reply
}

func (c *Core) dispatchLocked(req *signal.Frame) *signal.Frame {
	if strings.TrimSpace(req.Signal) == "" {
		return signal.NewErrorReply(req, nodeerr.New(nodeerr.BadArgument, "core.Dispatch", "missing signal name"))
	}
	n, err := c.tree.RetrieveChecked(req.Target)
	if err != nil {
		return signal.NewErrorReply(req, err)
	}
	// A link answers its own identity signals and forwards the rest.
	if n.IsLink() && !n.Signals().Has(req.Signal) {
		target, err := n.Deref()
		if err != nil {
			return signal.NewErrorReply(req, err)
		}
		n = target
	}
	return n.Signals().Dispatch(req.Signal, req)
}

// Invoke is Dispatch for local callers, returning error replies as errors.
func (c *Core) Invoke(target, sig string, opts *signal.Options) (*signal.Frame, error) {
	req := signal.NewRequest(target, sig)
	if opts != nil {
		req.Options.Merge(opts)
	}
	reply := c.Dispatch(req)
	return reply, reply.Err()
}

// Do runs fn with exclusive access to the tree and builders.
func (c *Core) Do(fn func(t *tree.Registry, b *builder.Registry) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(c.tree, c.builders)
}

// Toc lists every path in tree order.
func (c *Core) Toc() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Toc()
}

// Signals lists the signals reachable at path, following links.
func (c *Core) Signals(path string) ([]signal.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.tree.RetrieveChecked(path)
	if err != nil {
		return nil, err
	}
	return signalsOf(n)
}

// Types lists registered builders.
func (c *Core) Types() []builder.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builders.Types()
}

// Ready reports whether the tree still has its server component.
func (c *Core) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Exists(c.server.Path())
}

// signalsOf merges a link's own signals with its target's.
func signalsOf(n *tree.Node) ([]signal.Info, error) {
	out := n.Signals().List()
	if !n.IsLink() {
		return out, nil
	}
	target, err := n.Deref()
	if err != nil {
		return nil, err
	}
	for _, info := range target.Signals().List() {
		if !n.Signals().Has(info.Name) {
			out = append(out, info)
		}
	}
	return out, nil
}
