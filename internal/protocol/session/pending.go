package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/nodectl/internal/signal"
)

// PendingCall tracks one request awaiting its correlated reply.
type PendingCall struct {
	CorrelationID string
	Target        string
	Signal        string
	QueuedAt      time.Time
	Reply         chan *signal.Frame
}

// Pending stores in-flight calls by correlation id.
type Pending struct {
	mu    sync.Mutex
	items map[string]PendingCall
}

func NewPending() *Pending {
	return &Pending{
		items: make(map[string]PendingCall),
	}
}

// Add registers a call and returns the channel its reply is delivered on.
// It reports false when the correlation id is already in flight.
func (p *Pending) Add(req *signal.Frame, at time.Time) (<-chan *signal.Frame, bool) {
	key := strings.TrimSpace(req.CorrelationID)
	if key == "" {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[key]; ok {
		return nil, false
	}
	ch := make(chan *signal.Frame, 1)
	p.items[key] = PendingCall{
		CorrelationID: key,
		Target:        req.Target,
		Signal:        req.Signal,
		QueuedAt:      at,
		Reply:         ch,
	}
	return ch, true
}

// Resolve hands reply to the waiting call and forgets it. It reports false
// for replies nobody is waiting for.
func (p *Pending) Resolve(reply *signal.Frame) bool {
	key := strings.TrimSpace(reply.CorrelationID)
	p.mu.Lock()
	item, ok := p.items[key]
	if ok {
		delete(p.items, key)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	item.Reply <- reply
	return true
}

func (p *Pending) Remove(correlationID string) {
	key := strings.TrimSpace(correlationID)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.items, key)
}

// FailAll resolves every waiting call with a reply built by fail.
func (p *Pending) FailAll(fail func(PendingCall) *signal.Frame) int {
	p.mu.Lock()
	items := p.items
	p.items = make(map[string]PendingCall)
	p.mu.Unlock()
	for _, item := range items {
		item.Reply <- fail(item)
	}
	return len(items)
}

func (p *Pending) List() []PendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingCall, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CorrelationID < out[j].CorrelationID
	})
	return out
}
