// Package client is the Go side of a nodectl connection: correlated calls
// plus a stream of server-initiated events.
package client

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/protocol/frame"
	"github.com/danmuck/nodectl/internal/protocol/session"
	"github.com/danmuck/nodectl/internal/protocol/wire"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrClosed          = errors.New("client: connection closed")
)

type Config struct {
	Address            string
	Session            session.Config
	Limits             frame.Limits
	MaxConnectAttempts int
	EventBuffer        int
}

func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		Limits:             frame.DefaultLimits(),
		MaxConnectAttempts: 1,
		EventBuffer:        64,
	}
}

// Client is one connection to a nodectl server. Calls may be issued
// concurrently.
type Client struct {
	cfg    Config
	conn   net.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex
	pending *session.Pending
	events  chan *signal.Frame

	done      chan struct{}
	closeOnce sync.Once
	clientID  atomic.Value
}

// Dial connects once.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.MaxConnectAttempts = 1
	return DialRetry(ctx, cfg)
}

// DialRetry connects, retrying with backoff up to MaxConnectAttempts times
// (forever when zero or negative).
func DialRetry(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	def := DefaultConfig()
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = def.Limits
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			return newClient(cfg, conn), nil
		}
		log.Warn().Int("attempt", attempt).Str("addr", cfg.Address).Err(err).Msg("client dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, nodeerr.Wrap(nodeerr.ConnectionError, "client.Dial", err)
		}
		timer := time.NewTimer(cfg.Session.Backoff.Delay(attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func newClient(cfg Config, conn net.Conn) *Client {
	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: session.NewPending(),
		events:  make(chan *signal.Frame, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	c.clientID.Store("")
	go c.readLoop()
	return c
}

// ClientID is the id the server assigned to this connection, learned from
// the first frame it sent.
func (c *Client) ClientID() string {
	return c.clientID.Load().(string)
}

// Events delivers server-initiated frames. It is closed when the connection ends.
func (c *Client) Events() <-chan *signal.Frame {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call sends req and waits for its reply. A correlation id is generated when
// req has none. Error replies are returned together with their classified
// error.
func (c *Client) Call(ctx context.Context, req *signal.Frame) (*signal.Frame, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	ch, ok := c.pending.Add(req, time.Now())
	if !ok {
		return nil, nodeerr.New(nodeerr.BadArgument, "client.Call", "correlation id %q already in flight", req.CorrelationID)
	}
	select {
	case <-c.done:
		c.pending.Remove(req.CorrelationID)
		return nil, nodeerr.Wrap(nodeerr.ConnectionError, "client.Call", ErrClosed)
	default:
	}
	if err := c.write(req); err != nil {
		c.pending.Remove(req.CorrelationID)
		return nil, err
	}
	select {
	case reply := <-ch:
		if reply.IsError() {
			return reply, reply.Err()
		}
		return reply, nil
	case <-ctx.Done():
		c.pending.Remove(req.CorrelationID)
		return nil, ctx.Err()
	}
}

// Invoke is Call for a fresh request built from target, signal and options.
func (c *Client) Invoke(ctx context.Context, target, sig string, opts *signal.Options) (*signal.Frame, error) {
	req := signal.NewRequest(target, sig)
	if opts != nil {
		req.Options.Merge(opts)
	}
	return c.Call(ctx, req)
}

func (c *Client) write(f *signal.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.Session.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Session.WriteTimeout))
	}
	if err := wire.Write(c.conn, c.nextID.Add(1), f, c.cfg.Limits); err != nil {
		if errors.Is(err, nodeerr.ErrBadArgument) {
			return err
		}
		return nodeerr.Wrap(nodeerr.ConnectionError, "client.write", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	reader := bufio.NewReader(c.conn)
	for {
		f, _, err := wire.Read(reader, c.cfg.Limits)
		if err != nil {
			if errors.Is(err, nodeerr.ErrFrameParse) {
				log.Warn().Err(err).Msg("client dropped unparsable frame")
				continue
			}
			return
		}
		if f.ClientID != "" && c.ClientID() == "" {
			c.clientID.Store(f.ClientID)
		}
		if f.Reply && c.pending.Resolve(f) {
			continue
		}
		select {
		case c.events <- f:
		default:
			log.Warn().Str("signal", f.Signal).Msg("client event buffer full, frame dropped")
		}
	}
}

// shutdown runs once, on the reader goroutine, so events is never written
// after it is closed.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
		close(c.done)
		n := c.pending.FailAll(func(pc session.PendingCall) *signal.Frame {
			reply := signal.NewErrorReply(
				&signal.Frame{Target: pc.Target, Signal: pc.Signal, CorrelationID: pc.CorrelationID},
				nodeerr.Wrap(nodeerr.ConnectionError, "client", ErrClosed),
			)
			return reply
		})
		if n > 0 {
			log.Warn().Int("pending", n).Msg("client connection lost with calls in flight")
		}
		close(c.events)
	})
}

// Close ends the connection and waits for the reader to stop. Calls in
// flight fail with ConnectionError.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
