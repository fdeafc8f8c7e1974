package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/nodectl/internal/config"
	"github.com/danmuck/nodectl/internal/core"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
)

func startNodectl(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Components = []config.ComponentSpec{{Name: "solver", Type: "Solver"}}
	svc, err := core.NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = svc.Serve(ctx) }()
	t.Cleanup(cancel)
	deadline := time.Now().Add(3 * time.Second)
	for svc.Server().Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatalf("service never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return svc.Server().Addr().String()
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCallAgainstLiveServer(t *testing.T) {
	testlog.Start(t)
	addr := startNodectl(t)

	out, err := runCLI(t, "call", "/root/solver", "solve", "max_iterations=9", "--addr", addr)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !strings.Contains(out, "/root/solver solve ok") || !strings.Contains(out, "max_iterations = 9") {
		t.Fatalf("unexpected call output:\n%s", out)
	}

	out, err = runCLI(t, "tree", "--addr", addr)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.Contains(out, "[solver]") || !strings.Contains(out, "[Core]") {
		t.Fatalf("unexpected tree output:\n%s", out)
	}

	out, err = runCLI(t, "signals", "/root/nope", "--addr", addr)
	if err == nil {
		t.Fatalf("expected error for missing path")
	}
	if !strings.Contains(out, "InvalidPath") {
		t.Fatalf("error reply should be printed:\n%s", out)
	}
}
