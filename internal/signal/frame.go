package signal

import (
	"github.com/danmuck/nodectl/internal/nodeerr"
)

// ErrorInfo is the error descriptor carried by a failed reply.
type ErrorInfo struct {
	Kind    string
	Message string
}

// Frame is the self-describing argument and result container of one signal
// invocation. Nested frames are named and kept in insertion order.
type Frame struct {
	Name          string
	Target        string
	Signal        string
	CorrelationID string
	ClientID      string
	Sender        string
	Reply         bool
	Error         *ErrorInfo
	Options       Options
	Subframes     []*Frame
}

// NewRequest builds a request for signal on the node at target.
func NewRequest(target, signal string) *Frame {
	return &Frame{Target: target, Signal: signal}
}

// NewEvent builds a server-initiated frame emitted by the node at sender.
func NewEvent(sender, signal string) *Frame {
	return &Frame{Sender: sender, Signal: signal}
}

// NewReply builds an empty reply to req carrying its correlation and client ids.
func NewReply(req *Frame) *Frame {
	return &Frame{
		Target:        req.Target,
		Signal:        req.Signal,
		CorrelationID: req.CorrelationID,
		ClientID:      req.ClientID,
		Sender:        req.Target,
		Reply:         true,
	}
}

// NewErrorReply builds a failed reply to req from err.
func NewErrorReply(req *Frame, err error) *Frame {
	reply := NewReply(req)
	reply.Error = &ErrorInfo{
		Kind:    string(nodeerr.KindOf(err)),
		Message: nodeerr.Message(err),
	}
	return reply
}

// IsError reports whether f is a failed reply.
func (f *Frame) IsError() bool {
	return f != nil && f.Error != nil
}

// Err converts a failed reply back to a classified error.
func (f *Frame) Err() error {
	if !f.IsError() {
		return nil
	}
	return &nodeerr.Error{Kind: nodeerr.Kind(f.Error.Kind), Op: f.Signal, Msg: f.Error.Message}
}

// Map returns the subframe called name, creating it when missing.
func (f *Frame) Map(name string) *Frame {
	if sub, ok := f.Sub(name); ok {
		return sub
	}
	sub := &Frame{Name: name}
	f.Subframes = append(f.Subframes, sub)
	return sub
}

// Sub returns the first subframe called name.
func (f *Frame) Sub(name string) (*Frame, bool) {
	for _, sub := range f.Subframes {
		if sub.Name == name {
			return sub, true
		}
	}
	return nil, false
}

// AddSubframe appends sub even when a sibling shares its name.
func (f *Frame) AddSubframe(sub *Frame) {
	f.Subframes = append(f.Subframes, sub)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	out := *f
	if f.Error != nil {
		e := *f.Error
		out.Error = &e
	}
	out.Options = *f.Options.Clone()
	out.Subframes = make([]*Frame, 0, len(f.Subframes))
	for _, sub := range f.Subframes {
		out.Subframes = append(out.Subframes, sub.Clone())
	}
	return &out
}
