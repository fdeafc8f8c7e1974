package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/nodectl/internal/client"
	"github.com/danmuck/nodectl/internal/config"
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
)

const serviceTestConfig = `
root_name = "root"
listen_addr = "127.0.0.1:0"

[[components]]
name = "solver"
type = "Solver"
[components.properties]
max_iterations = 42

[[components]]
parent = "/root"
name = "tools"
type = "Group"

[[links]]
parent = "/root/tools"
name = "solver"
target = "/root/solver"
`

func startService(t *testing.T) (*Service, string, <-chan error) {
	t.Helper()
	return startServiceFrom(t, serviceTestConfig)
}

func startServiceFrom(t *testing.T, doc string) (*Service, string, <-chan error) {
	t.Helper()
	cfg, err := config.Parse(doc)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	t.Cleanup(cancel)

	deadline := time.Now().Add(3 * time.Second)
	for svc.Server().Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("service never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return svc, svc.Server().Addr().String(), done
}

func dialService(t *testing.T, addr string) *client.Client {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.Address = addr
	c, err := client.Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func nextEvent(t *testing.T, c *client.Client, sig string) *signal.Frame {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("event stream closed waiting for %s", sig)
			}
			if ev.Signal == sig {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", sig)
		}
	}
}

func TestServiceEndToEndSolveIsCorrelatedPerClient(t *testing.T) {
	testlog.Start(t)
	_, addr, _ := startService(t)
	a := dialService(t, addr)
	b := dialService(t, addr)

	welcome := nextEvent(t, a, EventMessage)
	if text, _ := welcome.Options.String("text"); text == "" {
		t.Fatalf("empty welcome")
	}
	nextEvent(t, b, EventMessage)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	reqA := signal.NewRequest("/root/solver", "solve")
	reqA.CorrelationID = "c1"
	reqB := signal.NewRequest("/root", SigListTree)
	reqB.CorrelationID = "c1"

	replyB, err := b.Call(ctx, reqB)
	if err != nil {
		t.Fatalf("client b call: %v", err)
	}
	replyA, err := a.Call(ctx, reqA)
	if err != nil {
		t.Fatalf("client a call: %v", err)
	}
	if replyA.CorrelationID != "c1" || replyA.ClientID != a.ClientID() {
		t.Fatalf("reply A mis-tagged: %+v", replyA)
	}
	if n, _ := replyA.Options.Int("max_iterations"); n != 42 {
		t.Fatalf("boot properties not applied: %d", n)
	}
	if replyB.Signal != SigListTree || replyB.ClientID != b.ClientID() {
		t.Fatalf("client b got someone else's reply: %+v", replyB)
	}

	// Through the boot link.
	reply, err := a.Invoke(ctx, "/root/tools/solver", "solve", nil)
	if err != nil {
		t.Fatalf("solve through link: %v", err)
	}
	if run, _ := reply.Options.Int("run"); run != 2 {
		t.Fatalf("link should reach the same solver, run=%d", run)
	}
}

func TestServiceInvalidPathIsAReplyNotADisconnect(t *testing.T) {
	testlog.Start(t)
	_, addr, _ := startService(t)
	a := dialService(t, addr)
	b := dialService(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req := signal.NewRequest("/root/nowhere", "solve")
	req.CorrelationID = "c-missing"
	reply, err := a.Call(ctx, req)
	if !errors.Is(err, nodeerr.ErrInvalidPath) {
		t.Fatalf("expected InvalidPath, got %v", err)
	}
	if reply.CorrelationID != "c-missing" {
		t.Fatalf("error reply lost correlation: %+v", reply)
	}

	if _, err := a.Invoke(ctx, "/root/solver", "solve", nil); err != nil {
		t.Fatalf("connection a should stay usable: %v", err)
	}
	if _, err := b.Invoke(ctx, "/root/Core", SigListToc, nil); err != nil {
		t.Fatalf("connection b affected: %v", err)
	}
}

func TestServiceBroadcastsTreeUpdates(t *testing.T) {
	testlog.Start(t)
	_, addr, _ := startService(t)
	a := dialService(t, addr)
	b := dialService(t, addr)
	nextEvent(t, b, EventMessage)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	opts := signal.NewOptions()
	opts.SetString("name", "cache")
	opts.SetString("atype", "Store")
	if _, err := a.Invoke(ctx, "/root/tools", SigCreateComponent, opts); err != nil {
		t.Fatalf("create: %v", err)
	}
	ev := nextEvent(t, b, EventTreeUpdated)
	if path, _ := ev.Options.String("path"); path != "/root/tools/cache" {
		t.Fatalf("unexpected updated path: %s", path)
	}
	if change, _ := ev.Options.String("change"); change != ChangeCreated {
		t.Fatalf("unexpected change: %s", change)
	}

	put := signal.NewOptions()
	put.SetString("key", "k")
	put.SetString("value", "v")
	if _, err := a.Invoke(ctx, "/root/tools/cache", "put", put); err != nil {
		t.Fatalf("put: %v", err)
	}
	get := signal.NewOptions()
	get.SetString("key", "k")
	reply, err := b.Invoke(ctx, "/root/tools/cache", "get", get)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v, _ := reply.Options.String("value"); v != "v" {
		t.Fatalf("unexpected value: %q", v)
	}
}

func TestServiceShutdownSignalStopsServe(t *testing.T) {
	testlog.Start(t)
	_, addr, done := startService(t)
	a := dialService(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := a.Invoke(ctx, "/root/Core", SigShutdown, nil); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("service did not stop")
	}
	select {
	case <-a.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("client connection not closed by shutdown")
	}
}

func TestNewServiceRejectsBadBoot(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultServerConfig()
	cfg.Components = []config.ComponentSpec{{Parent: "/root", Name: "m", Type: "Mesh"}}
	if _, err := NewService(cfg); !errors.Is(err, nodeerr.ErrUnknownType) {
		t.Fatalf("expected UnknownType boot failure, got %v", err)
	}
	cfg.Components = []config.ComponentSpec{{Parent: "/root/missing", Name: "m", Type: "Group"}}
	if _, err := NewService(cfg); !errors.Is(err, nodeerr.ErrInvalidPath) {
		t.Fatalf("expected InvalidPath boot failure, got %v", err)
	}
	cfg.Components = []config.ComponentSpec{{
		Name:       "s",
		Type:       "Solver",
		Properties: map[string]any{"max_iterations": "lots"},
	}}
	if _, err := NewService(cfg); !errors.Is(err, nodeerr.ErrBadArgument) {
		t.Fatalf("expected BadArgument boot failure, got %v", err)
	}
}

func TestServiceEnforcesConfiguredPayloadLimit(t *testing.T) {
	testlog.Start(t)
	_, addr, _ := startServiceFrom(t, "max_payload_bytes = 512\n"+serviceTestConfig)
	small := dialService(t, addr)
	big := dialService(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := small.Invoke(ctx, "/root/solver", "solve", nil); err != nil {
		t.Fatalf("small request under the limit: %v", err)
	}

	opts := signal.NewOptions()
	opts.SetString("blob", strings.Repeat("x", 2048))
	_, err := big.Invoke(ctx, "/root/solver", "solve", opts)
	if !errors.Is(err, nodeerr.ErrConnection) {
		t.Fatalf("oversized request must close its connection, got %v", err)
	}

	if _, err := small.Invoke(ctx, "/root/solver", "solve", nil); err != nil {
		t.Fatalf("other connection affected by the oversized frame: %v", err)
	}
}
