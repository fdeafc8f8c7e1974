package core

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/nodectl/internal/builder"
	"github.com/danmuck/nodectl/internal/components"
	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
	"github.com/danmuck/nodectl/internal/transport"
	"github.com/danmuck/nodectl/internal/tree"
)

type recordingNotifier struct {
	mu        sync.Mutex
	sent      []*signal.Frame
	broadcast []*signal.Frame
}

func (r *recordingNotifier) Send(clientID string, f *signal.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, f)
	return true
}

func (r *recordingNotifier) Broadcast(f *signal.Frame) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, f)
	return 1
}

func (r *recordingNotifier) ClientInfos() []transport.ClientInfo {
	return []transport.ClientInfo{{ID: "client-a", RemoteAddr: "127.0.0.1:1"}}
}

func (r *recordingNotifier) changes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.broadcast))
	for _, f := range r.broadcast {
		if f.Signal != EventTreeUpdated {
			continue
		}
		change, _ := f.Options.String("change")
		path, _ := f.Options.String("path")
		out = append(out, change+" "+path)
	}
	return out
}

func newTestCore(t *testing.T) (*Core, *recordingNotifier) {
	t.Helper()
	builders := builder.NewRegistry()
	if err := components.Register(builders); err != nil {
		t.Fatalf("register components: %v", err)
	}
	c, err := New("root", builders)
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	n := &recordingNotifier{}
	c.SetNotifier(n)
	return c, n
}

func invoke(t *testing.T, c *Core, target, sig string, set func(o *signal.Options)) *signal.Frame {
	t.Helper()
	opts := signal.NewOptions()
	if set != nil {
		set(opts)
	}
	reply, err := c.Invoke(target, sig, opts)
	if err != nil {
		t.Fatalf("%s %s: %v", target, sig, err)
	}
	return reply
}

// strOpts sets string options from name/value pairs.
func strOpts(kv ...string) func(o *signal.Options) {
	return func(o *signal.Options) {
		for i := 0; i+1 < len(kv); i += 2 {
			o.SetString(kv[i], kv[i+1])
		}
	}
}

func create(t *testing.T, c *Core, parent, name, atype string) string {
	t.Helper()
	reply := invoke(t, c, parent, SigCreateComponent, func(o *signal.Options) {
		o.SetString("name", name)
		if atype != "" {
			o.SetString("atype", atype)
		}
	})
	path, err := reply.Options.String("path")
	if err != nil {
		t.Fatalf("create reply path: %v", err)
	}
	return path
}

func TestNewCoreHasServerComponent(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	if c.ServerPath() != "/root/Core" {
		t.Fatalf("unexpected server path: %s", c.ServerPath())
	}
	if !c.Ready() {
		t.Fatalf("expected ready core")
	}
	toc := c.Toc()
	if len(toc) != 2 || toc[0] != "/root" || toc[1] != "/root/Core" {
		t.Fatalf("unexpected toc: %v", toc)
	}
	sigs, err := c.Signals("/root/Core")
	if err != nil {
		t.Fatalf("signals: %v", err)
	}
	if sigs[0].Name != SigShutdown {
		t.Fatalf("server signals should come first, got %v", sigs)
	}
}

func TestDispatchInvalidPathKeepsCorrelation(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	req := signal.NewRequest("/root/missing", "solve")
	req.CorrelationID = "c7"
	req.ClientID = "client-a"
	reply := c.Dispatch(req)
	if !reply.IsError() || reply.Error.Kind != string(nodeerr.InvalidPath) {
		t.Fatalf("expected InvalidPath reply, got %+v", reply)
	}
	if reply.CorrelationID != "c7" || reply.ClientID != "client-a" || !reply.Reply {
		t.Fatalf("reply lost its tags: %+v", reply)
	}

	reply = c.Dispatch(signal.NewRequest("relative/path", "list_tree"))
	if reply.Error == nil || reply.Error.Kind != string(nodeerr.InvalidPath) {
		t.Fatalf("expected InvalidPath for relative path, got %+v", reply.Error)
	}
	reply = c.Dispatch(signal.NewRequest("/root", ""))
	if reply.Error == nil || reply.Error.Kind != string(nodeerr.BadArgument) {
		t.Fatalf("expected BadArgument for empty signal, got %+v", reply.Error)
	}
	reply = c.Dispatch(signal.NewRequest("/root", "explode"))
	if reply.Error == nil || reply.Error.Kind != string(nodeerr.UnknownSignal) {
		t.Fatalf("expected UnknownSignal, got %+v", reply.Error)
	}
}

func TestSolveThroughRootAlias(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, ".", "solver", components.TypeSolver)
	reply := invoke(t, c, "cpath:/root/solver", "solve", nil)
	if run, _ := reply.Options.Int("run"); run != 1 {
		t.Fatalf("unexpected run count: %d", run)
	}
	solver, err := tree.RetrieveCheckedAs[*components.Solver](c.tree, "/root/solver")
	if err != nil || solver.Runs() != 1 {
		t.Fatalf("typed retrieve failed: %v", err)
	}
}

func TestCreateMoveRenameDeleteThroughSignals(t *testing.T) {
	testlog.Start(t)
	c, n := newTestCore(t)
	create(t, c, "/root", "a", components.TypeGroup)
	create(t, c, "/root/a", "solver", components.TypeSolver)
	create(t, c, "/root/a/solver", "notes", "")
	create(t, c, "/root", "b", "")

	invoke(t, c, "/root/a", SigMoveComponent, strOpts("path", "/root/b"))
	for _, path := range []string{"/root/b/a", "/root/b/a/solver", "/root/b/a/solver/notes"} {
		reply := c.Dispatch(signal.NewRequest(path, SigListSignals))
		if reply.IsError() {
			t.Fatalf("%s not reachable after move: %+v", path, reply.Error)
		}
	}
	for _, path := range []string{"/root/a", "/root/a/solver", "/root/a/solver/notes"} {
		reply := c.Dispatch(signal.NewRequest(path, SigListSignals))
		if !reply.IsError() {
			t.Fatalf("stale path %s still resolves", path)
		}
	}

	reply := invoke(t, c, "/root/b/a/solver", SigRenameComponent, strOpts("name", "s2"))
	if path, _ := reply.Options.String("path"); path != "/root/b/a/s2" {
		t.Fatalf("unexpected renamed path: %s", path)
	}
	invoke(t, c, "/root/b/a/s2", "solve", nil)

	invoke(t, c, "/root/b", SigDeleteComponent, nil)
	if toc := c.Toc(); len(toc) != 2 {
		t.Fatalf("expected only root and server left, got %v", toc)
	}

	want := []string{
		"created /root/a",
		"created /root/a/solver",
		"created /root/a/solver/notes",
		"created /root/b",
		"moved /root/b/a",
		"renamed /root/b/a/s2",
		"deleted /root/b",
	}
	got := n.changes()
	if len(got) != len(want) {
		t.Fatalf("unexpected tree updates: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tree update %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestStructuralErrorsBecomeReplies(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, "/root", "a", "")
	create(t, c, "/root/a", "b", "")

	cases := []struct {
		target string
		sig    string
		set    func(o *signal.Options)
		kind   nodeerr.Kind
	}{
		{"/root", SigCreateComponent, strOpts("name", "x", "atype", "Mesh"), nodeerr.UnknownType},
		{"/root", SigCreateComponent, strOpts("name", "a"), nodeerr.BadArgument},
		{"/root", SigCreateComponent, strOpts("name", "x/y"), nodeerr.InvalidPath},
		{"/root", SigCreateComponent, strOpts("name", "a "), nodeerr.InvalidPath},
		{"/root", SigCreateComponent, nil, nodeerr.BadArgument},
		{"/root", SigDeleteComponent, nil, nodeerr.BadArgument},
		{"/root/Core", SigDeleteComponent, nil, nodeerr.BadArgument},
		{"/root/Core", SigRenameComponent, strOpts("name", "Server"), nodeerr.BadArgument},
		{"/root/a", SigMoveComponent, strOpts("path", "/root/a/b"), nodeerr.BadArgument},
		{"/root/a", SigMoveComponent, strOpts("path", "/root/nope"), nodeerr.InvalidPath},
		{"/root/a/b", SigRenameComponent, strOpts("name", ".."), nodeerr.InvalidPath},
	}
	for i, tc := range cases {
		opts := signal.NewOptions()
		if tc.set != nil {
			tc.set(opts)
		}
		_, err := c.Invoke(tc.target, tc.sig, opts)
		if nodeerr.KindOf(err) != tc.kind {
			t.Fatalf("case %d (%s %s): got %v want kind %s", i, tc.target, tc.sig, err, tc.kind)
		}
	}
	if toc := c.Toc(); len(toc) != 4 {
		t.Fatalf("failed requests must not change the tree: %v", toc)
	}
}

func TestCreateUniqueSuffixesTakenNames(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, "/root", "job", "")

	for _, want := range []string{"/root/job_1", "/root/job_2"} {
		reply := invoke(t, c, "/root", SigCreateComponent, func(o *signal.Options) {
			o.SetString("name", "job")
			o.SetBool("unique", true)
		})
		if path, _ := reply.Options.String("path"); path != want {
			t.Fatalf("unique create: got %s want %s", path, want)
		}
	}
	reply := invoke(t, c, "/root", SigCreateComponent, func(o *signal.Options) {
		o.SetString("name", "fresh")
		o.SetBool("unique", true)
	})
	if path, _ := reply.Options.String("path"); path != "/root/fresh" {
		t.Fatalf("free name must be kept, got %s", path)
	}
}

func TestLinkForwardsAndNeverOwnsTarget(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, "/root", "solver", components.TypeSolver)
	reply := invoke(t, c, "/root", SigCreateLink, strOpts("name", "alias", "target", "/root/solver"))
	if target, _ := reply.Options.String("target"); target != "/root/solver" {
		t.Fatalf("unexpected link target: %s", target)
	}

	reply = invoke(t, c, "/root/alias", "solve", nil)
	if run, _ := reply.Options.Int("run"); run != 1 {
		t.Fatalf("solve through link: run=%d", run)
	}

	sigs, err := c.Signals("/root/alias")
	if err != nil {
		t.Fatalf("link signals: %v", err)
	}
	seen := map[string]bool{}
	for _, info := range sigs {
		seen[info.Name] = true
	}
	if !seen["solve"] || !seen[SigDeleteComponent] {
		t.Fatalf("link signals should merge own and target: %v", sigs)
	}

	// Children created through a link land on the target.
	create(t, c, "/root/alias", "notes", "")
	if _, err := c.Invoke("/root/solver/notes", SigOptions, nil); err != nil {
		t.Fatalf("child through link: %v", err)
	}

	invoke(t, c, "/root/solver", SigDeleteComponent, nil)
	_, err = c.Invoke("/root/alias", "solve", nil)
	if !errors.Is(err, nodeerr.ErrBrokenLink) {
		t.Fatalf("expected BrokenLink after target delete, got %v", err)
	}
	if _, err := c.Signals("/root/alias"); !errors.Is(err, nodeerr.ErrBrokenLink) {
		t.Fatalf("expected BrokenLink listing signals, got %v", err)
	}

	create(t, c, "/root", "solver", components.TypeSolver)
	reply = invoke(t, c, "/root/alias", "solve", nil)
	if run, _ := reply.Options.Int("run"); run != 1 {
		t.Fatalf("link should see the recreated solver, run=%d", run)
	}

	invoke(t, c, "/root/alias", SigDeleteComponent, nil)
	invoke(t, c, "/root/solver", "solve", nil)
}

func TestConfigureAndOptions(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, "/root", "solver", components.TypeSolver)

	invoke(t, c, "/root/solver", SigConfigure, func(o *signal.Options) {
		o.SetInt(components.PropMaxIterations, 7)
		o.SetInt(components.PropTolerance, 1)
		o.SetString("label", "fast")
	})
	reply := invoke(t, c, "/root/solver", "solve", nil)
	if n, _ := reply.Options.Int(components.PropMaxIterations); n != 7 {
		t.Fatalf("configure not applied: %d", n)
	}
	if tol, _ := reply.Options.Float(components.PropTolerance); tol != 1 {
		t.Fatalf("int tolerance should widen to float: %v", tol)
	}

	_, err := c.Invoke("/root/solver", SigConfigure, func() *signal.Options {
		o := signal.NewOptions()
		o.SetString("note", "ok")
		o.SetString(components.PropMaxIterations, "many")
		return o
	}())
	if !errors.Is(err, nodeerr.ErrBadArgument) {
		t.Fatalf("expected BadArgument on type change, got %v", err)
	}

	reply = invoke(t, c, "/root/solver", SigOptions, nil)
	if reply.Options.Has("note") {
		t.Fatalf("rejected configure must not apply partially")
	}
	names := reply.Options.Names()
	if len(names) != 3 || names[0] != components.PropMaxIterations || names[2] != "label" {
		t.Fatalf("unexpected property order: %v", names)
	}
}

func TestListTreeNestsSubframes(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	create(t, c, "/root", "a", components.TypeGroup)
	create(t, c, "/root/a", "store", components.TypeStore)
	invoke(t, c, "/root/a", SigCreateLink, strOpts("name", "core", "target", "/root/Core"))

	reply := invoke(t, c, "/root", SigListTree, nil)
	if path, _ := reply.Options.String("path"); path != "/root" {
		t.Fatalf("unexpected tree root: %s", path)
	}
	a, ok := reply.Sub("a")
	if !ok {
		t.Fatalf("missing subframe a: %+v", reply.Subframes)
	}
	if typ, _ := a.Options.String("type"); typ != components.TypeGroup {
		t.Fatalf("unexpected type: %s", typ)
	}
	if len(a.Subframes) != 2 {
		t.Fatalf("unexpected children of a: %+v", a.Subframes)
	}
	link, _ := a.Sub("core")
	if kind, _ := link.Options.String("kind"); kind != "link" {
		t.Fatalf("unexpected link kind: %s", kind)
	}
	if target, _ := link.Options.String("target"); target != "/root/Core" {
		t.Fatalf("unexpected link target: %s", target)
	}
	if len(link.Subframes) != 0 {
		t.Fatalf("links must not be expanded")
	}
}

func TestServerComponentSignals(t *testing.T) {
	testlog.Start(t)
	c, n := newTestCore(t)

	reply := invoke(t, c, "/root/Core", SigListTypes, nil)
	types, _ := reply.Options.Strings("types")
	if len(types) != 3 || types[0] != components.TypeGroup {
		t.Fatalf("unexpected types: %v", types)
	}

	reply = invoke(t, c, "/root/Core", SigListClients, nil)
	if ids, _ := reply.Options.Strings("clients"); len(ids) != 1 || ids[0] != "client-a" {
		t.Fatalf("unexpected clients: %v", ids)
	}

	reply = invoke(t, c, "/root/Core", SigListToc, nil)
	if toc, _ := reply.Options.String("toc"); toc != "/root\n/root/Core\n" {
		t.Fatalf("unexpected toc: %q", toc)
	}

	invoke(t, c, "/root/Core", SigMessage, strOpts("level", LevelWarning, "text", "disk low", "client", "client-a"))
	if len(n.sent) != 1 || n.sent[0].ClientID != "client-a" || n.sent[0].Sender != "/root/Core" {
		t.Fatalf("unexpected direct message: %+v", n.sent)
	}
	_, err := c.Invoke("/root/Core", SigMessage, func() *signal.Options {
		o := signal.NewOptions()
		o.SetString("level", "loud")
		o.SetString("text", "x")
		return o
	}())
	if !errors.Is(err, nodeerr.ErrBadArgument) {
		t.Fatalf("expected BadArgument for unknown level, got %v", err)
	}

	if _, err := c.Invoke("/root/Core", SigShutdown, nil); !errors.Is(err, nodeerr.ErrHandlerFailed) {
		t.Fatalf("expected HandlerFailed without stop func, got %v", err)
	}
	stopped := make(chan struct{})
	c.SetStop(func() { close(stopped) })
	invoke(t, c, "/root/Core", SigShutdown, nil)
	<-stopped
}

func TestWelcomeNamesClient(t *testing.T) {
	testlog.Start(t)
	c, n := newTestCore(t)
	c.ClientConnected("client-z")
	if len(n.sent) != 1 {
		t.Fatalf("expected one welcome, got %d", len(n.sent))
	}
	f := n.sent[0]
	if f.Signal != EventMessage || f.ClientID != "client-z" || f.Reply {
		t.Fatalf("unexpected welcome frame: %+v", f)
	}
	if id, _ := f.Options.String("client_id"); id != "client-z" {
		t.Fatalf("welcome should carry the client id, got %q", id)
	}
}

func TestStorePayloadIsReachedUnderTheCoreLock(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestCore(t)
	path := create(t, c, "/root", "cache", components.TypeStore)
	invoke(t, c, path, "put", strOpts("key", "region", "value", "eu"))

	var got string
	err := c.Do(func(reg *tree.Registry, _ *builder.Registry) error {
		s, err := tree.RetrieveCheckedAs[*components.Store](reg, path)
		if err != nil {
			return err
		}
		got, _ = s.Get("region")
		s.Put("zone", "b")
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if got != "eu" {
		t.Fatalf("value written by signal not visible: %q", got)
	}
	reply := invoke(t, c, path, "get", strOpts("key", "zone"))
	if v, _ := reply.Options.String("value"); v != "b" {
		t.Fatalf("value written under Do not visible to signals: %q", v)
	}
}
