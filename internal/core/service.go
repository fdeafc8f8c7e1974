package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/danmuck/nodectl/internal/builder"
	"github.com/danmuck/nodectl/internal/components"
	"github.com/danmuck/nodectl/internal/config"
	"github.com/danmuck/nodectl/internal/observability"
	"github.com/danmuck/nodectl/internal/protocol/frame"
	"github.com/danmuck/nodectl/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const adminShutdownTimeout = 5 * time.Second

// Service runs the nodectl server lifecycle: boot tree, client transport and
// the optional admin HTTP surface.
type Service struct {
	cfg    config.ServerConfig
	core   *Core
	server *transport.Server
	admin  *http.Server
	log    zerolog.Logger
}

// NewService builds the component registry, the tree and the transport from
// cfg. Boot failures are returned; registration duplicates panic.
func NewService(cfg config.ServerConfig) (*Service, error) {
	builders := builder.NewRegistry()
	if err := components.Register(builders); err != nil {
		panic(err)
	}
	c, err := New(cfg.RootName, builders)
	if err != nil {
		return nil, err
	}
	if err := c.Boot(cfg.Components, cfg.Links); err != nil {
		return nil, fmt.Errorf("boot tree: %w", err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.ListenAddr = cfg.ListenAddr
	tcfg.Session = cfg.Session
	tcfg.Limits = frame.Limits{MaxPayloadBytes: uint64(cfg.MaxPayloadBytes)}
	srv := transport.NewServer(tcfg, c)
	srv.OnClientConnected(c.ClientConnected)
	srv.OnClientDisconnected(c.ClientDisconnected)
	c.SetNotifier(srv)

	s := &Service{
		cfg:    cfg,
		core:   c,
		server: srv,
		log:    observability.ComponentLogger("service"),
	}
	if cfg.AdminListenAddr != "" {
		admin := observability.NewAdmin(cfg.RootName, c, cfg.CorsOrigins)
		s.admin = &http.Server{
			Addr:              cfg.AdminListenAddr,
			Handler:           admin.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

func (s *Service) Core() *Core { return s.core }

func (s *Service) Server() *transport.Server { return s.server }

// Run blocks until SIGINT/SIGTERM or a shutdown signal from a client.
func (s *Service) Run() error {
	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve binds the transport and admin listeners and serves until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	observability.RegisterMetrics()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.core.SetStop(cancel)

	if !s.server.Listen(s.cfg.ListenAddr) {
		return fmt.Errorf("nodectl: cannot listen on %s", s.cfg.ListenAddr)
	}
	s.log.Info().
		Str("addr", s.server.Addr().String()).
		Str("root", s.cfg.RootName).
		Msg("nodectl serving")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.server.ListenAndServe(gctx)
		cancel()
		return err
	})
	if s.admin != nil {
		ln, err := net.Listen("tcp", s.admin.Addr)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("nodectl admin: %w", err)
		}
		s.log.Info().Str("addr", ln.Addr().String()).Msg("nodectl admin serving")
		g.Go(func() error {
			if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("nodectl admin: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), adminShutdownTimeout)
			defer done()
			return s.admin.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	s.log.Info().Msg("nodectl stopped")
	return err
}
