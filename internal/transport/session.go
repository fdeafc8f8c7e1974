package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/nodectl/internal/observability"
	"github.com/danmuck/nodectl/internal/protocol/frame"
	"github.com/danmuck/nodectl/internal/protocol/wire"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/rs/zerolog"
)

// State is the lifecycle of one client session. Transitions only move forward.
type State int32

const (
	StateConnecting State = iota
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClientInfo is a snapshot of one session for listings.
type ClientInfo struct {
	ID          string
	RemoteAddr  string
	State       State
	ConnectedAt time.Time
}

// ClientSession is one accepted connection with its outbound queue.
type ClientSession struct {
	id          string
	conn        net.Conn
	remote      string
	connectedAt time.Time

	state  atomic.Int32
	nextID atomic.Uint64

	queue     chan *signal.Frame
	done      chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
	limits       frame.Limits
	log          zerolog.Logger
}

func newClientSession(id string, conn net.Conn, queueSize int, writeTimeout time.Duration, limits frame.Limits, log zerolog.Logger) *ClientSession {
	if queueSize <= 0 {
		queueSize = 1
	}
	s := &ClientSession{
		id:           id,
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		connectedAt:  time.Now(),
		queue:        make(chan *signal.Frame, queueSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		limits:       limits,
		log:          log.With().Str("client_id", id).Str("remote", conn.RemoteAddr().String()).Logger(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *ClientSession) ID() string { return s.id }

func (s *ClientSession) State() State { return State(s.state.Load()) }

func (s *ClientSession) Info() ClientInfo {
	return ClientInfo{ID: s.id, RemoteAddr: s.remote, State: s.State(), ConnectedAt: s.connectedAt}
}

// advance moves the session forward to next; it never moves backwards.
func (s *ClientSession) advance(next State) bool {
	for {
		cur := s.state.Load()
		if State(cur) >= next {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

// enqueue hands f to the writer without blocking. The drop reason is empty
// when the frame was queued.
func (s *ClientSession) enqueue(f *signal.Frame) string {
	if s.State() != StateEstablished {
		return "closed_session"
	}
	select {
	case s.queue <- f:
		return ""
	default:
		return "queue_full"
	}
}

func (s *ClientSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case f := <-s.queue:
			if err := s.write(f); err != nil {
				s.log.Warn().Err(err).Str("signal", f.Signal).Msg("transport.session write failed")
				s.close()
				return
			}
		}
	}
}

func (s *ClientSession) write(f *signal.Frame) error {
	b, err := wire.EncodeBytes(s.nextID.Add(1), f, s.limits)
	if err != nil {
		observability.RecordFrameDropped("encode")
		s.log.Error().Err(err).Str("signal", f.Signal).Msg("transport.session encode failed")
		return nil
	}
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if _, err := s.conn.Write(b); err != nil {
		return err
	}
	observability.RecordFrameOut()
	return nil
}

// close is idempotent; queued frames not yet written are dropped.
func (s *ClientSession) close() {
	s.closeOnce.Do(func() {
		s.advance(StateClosing)
		close(s.done)
		_ = s.conn.Close()
		s.advance(StateClosed)
	})
}
