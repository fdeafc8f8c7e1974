package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/nodectl/internal/signal"
)

// render prints f as an indented outline: header, options, then subframes.
func render(w io.Writer, f *signal.Frame) {
	switch {
	case f.IsError():
		fmt.Fprintf(w, "%s %s -> %s: %s\n", f.Target, f.Signal, f.Error.Kind, f.Error.Message)
	case f.Reply:
		fmt.Fprintf(w, "%s %s ok\n", f.Target, f.Signal)
	default:
		fmt.Fprintf(w, "event %s from %s\n", f.Signal, f.Sender)
	}
	renderBody(w, f, 1)
}

func renderBody(w io.Writer, f *signal.Frame, depth int) {
	indent := strings.Repeat("  ", depth)
	f.Options.Range(func(name string, v signal.Value) bool {
		fmt.Fprintf(w, "%s%s = %s\n", indent, name, v.String())
		return true
	})
	for _, sub := range f.Subframes {
		fmt.Fprintf(w, "%s[%s]\n", indent, sub.Name)
		renderBody(w, sub, depth+1)
	}
}
