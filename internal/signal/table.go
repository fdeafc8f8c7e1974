package signal

import (
	"fmt"
	"strings"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/rs/zerolog/log"
)

// Handler runs one signal. A nil reply is answered with an empty ack.
type Handler func(req *Frame) (*Frame, error)

// Info describes one bound signal for introspection.
type Info struct {
	Name        string
	Description string
}

type entry struct {
	info    Info
	handler Handler
}

// Table binds signal names to handlers for one node. It is not safe for
// concurrent use; the serving context serializes dispatch.
type Table struct {
	order   []string
	entries map[string]entry
}

func NewTable() *Table {
	return &Table{entries: make(map[string]entry)}
}

// Register binds name. Binding a name twice fails with DuplicateSignal.
func (t *Table) Register(name, description string, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nodeerr.New(nodeerr.BadArgument, "signal.Register", "empty signal name")
	}
	if h == nil {
		return nodeerr.New(nodeerr.BadArgument, "signal.Register", "nil handler for %q", name)
	}
	if _, ok := t.entries[name]; ok {
		return nodeerr.New(nodeerr.DuplicateSignal, "signal.Register", "signal %q already bound", name)
	}
	t.entries[name] = entry{info: Info{Name: name, Description: description}, handler: h}
	t.order = append(t.order, name)
	return nil
}

// MustRegister is Register for component initialization, where a duplicate is
// a build-time mistake.
func (t *Table) MustRegister(name, description string, h Handler) {
	if err := t.Register(name, description, h); err != nil {
		panic(err)
	}
}

func (t *Table) Has(name string) bool {
	_, ok := t.entries[name]
	return ok
}

// List returns bound signals in registration order.
func (t *Table) List() []Info {
	out := make([]Info, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.entries[name].info)
	}
	return out
}

// Invoke runs the handler bound to name. Only an unbound name is returned as
// an error; handler failures and panics come back as error replies.
func (t *Table) Invoke(name string, req *Frame) (*Frame, error) {
	e, ok := t.entries[name]
	if !ok {
		return nil, nodeerr.New(nodeerr.UnknownSignal, "signal.Invoke", "no signal %q on %q", name, req.Target)
	}
	return run(e, req), nil
}

// Dispatch is Invoke that always yields a reply.
func (t *Table) Dispatch(name string, req *Frame) *Frame {
	reply, err := t.Invoke(name, req)
	if err != nil {
		return NewErrorReply(req, err)
	}
	return reply
}

func run(e entry, req *Frame) (reply *Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("signal", e.info.Name).
				Str("target", req.Target).
				Interface("panic", r).
				Msg("signal handler panicked")
			reply = NewErrorReply(req, nodeerr.New(nodeerr.HandlerFailed, e.info.Name, "panic: %v", r))
		}
	}()

	out, err := e.handler(req)
	if err != nil {
		log.Warn().
			Str("signal", e.info.Name).
			Str("target", req.Target).
			Str("correlation_id", req.CorrelationID).
			Err(err).
			Msg("signal handler failed")
		return NewErrorReply(req, err)
	}
	if out == nil {
		return NewReply(req)
	}
	return tagReply(out, req)
}

func tagReply(out, req *Frame) *Frame {
	out.Reply = true
	out.CorrelationID = req.CorrelationID
	out.ClientID = req.ClientID
	if out.Target == "" {
		out.Target = req.Target
	}
	if out.Signal == "" {
		out.Signal = req.Signal
	}
	if out.Sender == "" {
		out.Sender = req.Target
	}
	return out
}

// String renders the table for logs.
func (t *Table) String() string {
	return fmt.Sprintf("signal.Table(%s)", strings.Join(t.order, ","))
}
