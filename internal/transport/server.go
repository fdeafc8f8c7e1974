package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/observability"
	"github.com/danmuck/nodectl/internal/protocol/frame"
	"github.com/danmuck/nodectl/internal/protocol/schema"
	"github.com/danmuck/nodectl/internal/protocol/session"
	"github.com/danmuck/nodectl/internal/protocol/wire"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher handles one decoded request and always returns a reply.
type Dispatcher interface {
	Dispatch(req *signal.Frame) *signal.Frame
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(req *signal.Frame) *signal.Frame

func (f DispatcherFunc) Dispatch(req *signal.Frame) *signal.Frame { return f(req) }

// Config is the server endpoint configuration.
type Config struct {
	ListenAddr string
	Session    session.Config
	Limits     frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ListenAddr: "127.0.0.1:9400",
		Session:    session.DefaultConfig(),
		Limits:     frame.DefaultLimits(),
	}
}

// RejectedSignal names the answer to a frame that could not be handled.
const RejectedSignal = "frame_rejected"

// Server accepts client connections and routes frames between them and a
// Dispatcher.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	log        zerolog.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[string]*ClientSession
	closed   bool

	hooksMu      sync.RWMutex
	onConnect    []func(clientID string)
	onDisconnect []func(clientID string)

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewServer(cfg Config, d Dispatcher) *Server {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = def.Limits
	}
	if cfg.Session.SendQueue <= 0 {
		cfg.Session.SendQueue = def.Session.SendQueue
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		log:        observability.ComponentLogger("transport"),
		sessions:   make(map[string]*ClientSession),
	}
}

// Listen binds addr (the configured address when empty). Failure is logged
// and reported as false; the caller decides whether to retry.
func (s *Server) Listen(addr string) bool {
	if addr == "" {
		addr = s.cfg.ListenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", addr).Msg("transport.Listen bind failed")
		return false
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("transport.Listen bound")
	return true
}

// Addr returns the bound address, nil before Listen or Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe binds the configured address unless Listen already did and
// serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if !s.Listen(s.cfg.ListenAddr) {
			return fmt.Errorf("transport: cannot listen on %s", s.cfg.ListenAddr)
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || s.isClosed() {
				return nil
			}
			return err
		}
		sess := s.trackSession(conn)
		if sess == nil {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go s.handleConn(sess)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// OnClientConnected registers fn to run once a session is established.
func (s *Server) OnClientConnected(fn func(clientID string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onConnect = append(s.onConnect, fn)
}

// OnClientDisconnected registers fn to run after a session is closed.
func (s *Server) OnClientDisconnected(fn func(clientID string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

func (s *Server) fire(hooks func() []func(string), clientID string) {
	s.hooksMu.RLock()
	list := hooks()
	s.hooksMu.RUnlock()
	for _, fn := range list {
		fn(clientID)
	}
}

// Send queues f for clientID. Unknown or closed sessions and full queues drop
// the frame with a log line; Send never fails loudly.
func (s *Server) Send(clientID string, f *signal.Frame) bool {
	s.mu.Lock()
	sess, ok := s.sessions[clientID]
	s.mu.Unlock()
	if !ok {
		observability.RecordFrameDropped("unknown_session")
		s.log.Debug().Str("client_id", clientID).Str("signal", f.Signal).Msg("transport.Send unknown session, frame dropped")
		return false
	}
	if reason := sess.enqueue(f); reason != "" {
		observability.RecordFrameDropped(reason)
		s.log.Warn().
			Str("client_id", clientID).
			Str("signal", f.Signal).
			Str("reason", reason).
			Msg("transport.Send frame dropped")
		return false
	}
	return true
}

// Broadcast queues a copy of f for every established session and returns how
// many accepted it.
func (s *Server) Broadcast(f *signal.Frame) int {
	s.mu.Lock()
	targets := make([]*ClientSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.State() == StateEstablished {
			targets = append(targets, sess)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, sess := range targets {
		out := f.Clone()
		out.ClientID = sess.id
		if reason := sess.enqueue(out); reason != "" {
			observability.RecordFrameDropped(reason)
			continue
		}
		sent++
	}
	return sent
}

// Clients returns established session ids sorted.
func (s *Server) Clients() []string {
	infos := s.ClientInfos()
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.ID)
	}
	return out
}

// ClientInfos returns established sessions sorted by id.
func (s *Server) ClientInfos() []ClientInfo {
	s.mu.Lock()
	out := make([]ClientInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.State() == StateEstablished {
			out = append(out, sess.Info())
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown closes the listener and every session, then waits for connection
// handlers to return.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	ln := s.ln
	sessions := make([]*ClientSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
	s.log.Info().Msg("transport.Shutdown complete")
}

func (s *Server) trackSession(conn net.Conn) *ClientSession {
	sess := newClientSession(
		uuid.NewString(),
		conn,
		s.cfg.Session.SendQueue,
		s.cfg.Session.WriteTimeout,
		s.cfg.Limits,
		s.log,
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.sessions[sess.id] = sess
	return sess
}

func (s *Server) untrackSession(sess *ClientSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
}

func (s *Server) handleConn(sess *ClientSession) {
	defer s.wg.Done()
	sess.advance(StateEstablished)
	go sess.writeLoop()

	active := s.active.Add(1)
	observability.SetSessionsActive(int(active))
	sess.log.Info().Int64("active_clients", active).Msg("transport client connected")
	s.fire(func() []func(string) { return s.onConnect }, sess.id)

	defer func() {
		sess.close()
		s.untrackSession(sess)
		remaining := s.active.Add(-1)
		observability.SetSessionsActive(int(remaining))
		sess.log.Info().Int64("active_clients", remaining).Msg("transport client disconnected")
		s.fire(func() []func(string) { return s.onDisconnect }, sess.id)
	}()

	reader := bufio.NewReader(sess.conn)
	for {
		if s.cfg.Session.ReadTimeout > 0 {
			_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
		}
		req, hdr, err := wire.Read(reader, s.cfg.Limits)
		if err != nil {
			if errors.Is(err, nodeerr.ErrFrameParse) {
				observability.RecordFrameIn()
				sess.log.Warn().
					Err(err).
					Uint64("message_id", hdr.MessageID).
					Str("correlation_id", req.CorrelationID).
					Msg("transport frame rejected")
				s.reject(sess, req, err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && sess.State() == StateEstablished {
				sess.log.Warn().Err(err).Msg("transport stream unreadable, closing connection")
			}
			return
		}
		observability.RecordFrameIn()
		if hdr.MessageType != schema.MsgRequest {
			sess.log.Warn().Uint32("message_type", hdr.MessageType).Msg("transport unexpected message type")
			s.reject(sess, req, nodeerr.New(nodeerr.FrameParseError, "transport", "unexpected message type %d", hdr.MessageType))
			continue
		}

		req.ClientID = sess.id
		reply := s.dispatcher.Dispatch(req)
		if reply == nil {
			reply = signal.NewReply(req)
		}
		reply.Reply = true
		reply.CorrelationID = req.CorrelationID
		reply.ClientID = sess.id
		s.Send(sess.id, reply)
	}
}

// reject answers a frame that could not be handled. The connection stays up.
// When the correlation id survived, the answer is an error reply so a waiting
// caller fails at once; otherwise it is an event.
func (s *Server) reject(sess *ClientSession, req *signal.Frame, cause error) {
	info := &signal.ErrorInfo{
		Kind:    string(nodeerr.FrameParseError),
		Message: "frame rejected: " + nodeerr.Message(cause),
	}
	var f *signal.Frame
	if req != nil && req.CorrelationID != "" {
		f = signal.NewReply(req)
		f.Signal = RejectedSignal
	} else {
		f = signal.NewEvent("", RejectedSignal)
	}
	f.ClientID = sess.id
	f.Error = info
	s.Send(sess.id, f)
}
