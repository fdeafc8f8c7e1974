package session

import (
	"math/rand"
	"testing"
	"time"

	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
)

func TestBackoffDelayGrowsToCap(t *testing.T) {
	testlog.Start(t)
	b := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	cases := map[int]time.Duration{
		0:  250 * time.Millisecond,
		1:  250 * time.Millisecond,
		2:  500 * time.Millisecond,
		3:  time.Second,
		6:  5 * time.Second,
		40: 5 * time.Second,
	}
	for n, want := range cases {
		if got := b.Delay(n, nil); got != want {
			t.Fatalf("attempt %d: got %v want %v", n, got, want)
		}
	}
	if got := (BackoffConfig{}).Delay(3, nil); got != 0 {
		t.Fatalf("zero config must not wait, got %v", got)
	}
}

func TestBackoffJitterStaysWithinCap(t *testing.T) {
	testlog.Start(t)
	b := DefaultConfig().Backoff
	rng := rand.New(rand.NewSource(1))
	for n := 2; n < 10; n++ {
		full := BackoffConfig{InitialDelay: b.InitialDelay, Multiplier: b.Multiplier, MaxDelay: b.MaxDelay}.Delay(n, nil)
		got := b.Delay(n, rng)
		if got < full/2 || got > full || got > b.MaxDelay {
			t.Fatalf("attempt %d: %v outside [%v, %v]", n, got, full/2, full)
		}
	}
}

func TestPendingLifecycle(t *testing.T) {
	testlog.Start(t)
	p := NewPending()
	req := signal.NewRequest("/root", "list_tree")
	req.CorrelationID = "c1"

	ch, ok := p.Add(req, time.Unix(1700000000, 0))
	if !ok {
		t.Fatalf("add failed")
	}
	if _, ok := p.Add(req, time.Now()); ok {
		t.Fatalf("duplicate correlation id must be rejected")
	}
	if len(p.List()) != 1 {
		t.Fatalf("expected one pending call")
	}

	stray := signal.NewReply(req)
	stray.CorrelationID = "other"
	if p.Resolve(stray) {
		t.Fatalf("unexpected match for stray reply")
	}
	if !p.Resolve(signal.NewReply(req)) {
		t.Fatalf("reply not delivered")
	}
	got := <-ch
	if got.CorrelationID != "c1" {
		t.Fatalf("unexpected reply: %+v", got)
	}
	if len(p.List()) != 0 {
		t.Fatalf("resolved call still pending")
	}
}

func TestPendingFailAll(t *testing.T) {
	testlog.Start(t)
	p := NewPending()
	var chans []<-chan *signal.Frame
	for _, id := range []string{"a", "b"} {
		req := signal.NewRequest("/root", "x")
		req.CorrelationID = id
		ch, _ := p.Add(req, time.Now())
		chans = append(chans, ch)
	}
	n := p.FailAll(func(pc PendingCall) *signal.Frame {
		return &signal.Frame{CorrelationID: pc.CorrelationID, Reply: true, Error: &signal.ErrorInfo{Kind: "ConnectionError"}}
	})
	if n != 2 {
		t.Fatalf("expected 2 failed calls, got %d", n)
	}
	for _, ch := range chans {
		if f := <-ch; !f.IsError() {
			t.Fatalf("expected error reply, got %+v", f)
		}
	}
}
