package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/testutil/testlog"
)

func TestParseOptionsTypesValues(t *testing.T) {
	testlog.Start(t)
	opts, err := parseOptions([]string{
		"n=3",
		"tol=1e-6",
		"on=true",
		"name=solver",
		"id=s:42",
		"ints=[1, 2,3]",
		"mixed=[1,2.5]",
		"tags=[a,b]",
		"empty=[]",
		"eq=a=b",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := map[string]signal.ValueType{
		"n":     signal.TypeInt,
		"tol":   signal.TypeFloat,
		"on":    signal.TypeBool,
		"name":  signal.TypeString,
		"id":    signal.TypeString,
		"ints":  signal.TypeIntArray,
		"mixed": signal.TypeFloatArray,
		"tags":  signal.TypeStringArray,
		"empty": signal.TypeStringArray,
		"eq":    signal.TypeString,
	}
	for name, typ := range want {
		v, ok := opts.Get(name)
		if !ok || v.Type != typ {
			t.Fatalf("%s: got %+v want %s", name, v, typ)
		}
	}
	if s, _ := opts.String("eq"); s != "a=b" {
		t.Fatalf("value should keep later '=': %q", s)
	}
	if s, _ := opts.String("id"); s != "42" {
		t.Fatalf("s: prefix should force string: %q", s)
	}

	if _, err := parseOptions([]string{"novalue"}); err == nil {
		t.Fatalf("expected error without '='")
	}
	if _, err := parseOptions([]string{"=x"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestRenderOutline(t *testing.T) {
	testlog.Start(t)
	reply := signal.NewReply(signal.NewRequest("/root", "list_tree"))
	reply.Options.SetString("path", "/root")
	child := reply.Map("Core")
	child.Options.SetString("path", "/root/Core")

	var buf bytes.Buffer
	render(&buf, reply)
	out := buf.String()
	for _, want := range []string{"/root list_tree ok", "  path = ", "  [Core]", "    path = "} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	render(&buf, signal.NewErrorReply(signal.NewRequest("/x", "solve"), nodeerr.New(nodeerr.InvalidPath, "t", "no component at /x")))
	if !strings.HasPrefix(buf.String(), "/x solve -> InvalidPath: no component at /x") {
		t.Fatalf("unexpected error rendering: %q", buf.String())
	}
}
