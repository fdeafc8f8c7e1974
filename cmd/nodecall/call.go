package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/nodectl/internal/signal"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <path> <signal> [key=value...]",
	Short: "Invoke one signal and print the reply",
	Long: `Values are typed by shape: integers, floats, true/false, and
comma lists in brackets ([1,2,3]); anything else is a string. Prefix a
value with s: to force a string.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseOptions(args[2:])
		if err != nil {
			return err
		}
		return invokeAndPrint(cmd, args[0], args[1], opts)
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Print the component tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		return invokeAndPrint(cmd, path, "list_tree", nil)
	},
}

var signalsCmd = &cobra.Command{
	Use:   "signals <path>",
	Short: "List the signals a component answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return invokeAndPrint(cmd, args[0], "list_signals", nil)
	},
}

func init() {
	rootCmd.AddCommand(callCmd, treeCmd, signalsCmd)
}

func invokeAndPrint(cmd *cobra.Command, path, sig string, opts *signal.Options) error {
	c, ctx, cancel, err := connect(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	reply, err := c.Invoke(ctx, path, sig, opts)
	if reply != nil {
		render(cmd.OutOrStdout(), reply)
	}
	return err
}

// parseOptions turns key=value arguments into typed options.
func parseOptions(args []string) (*signal.Options, error) {
	opts := signal.NewOptions()
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("option %q is not key=value", arg)
		}
		opts.Set(key, parseValue(raw))
	}
	return opts, nil
}

func parseValue(raw string) signal.Value {
	if s, ok := strings.CutPrefix(raw, "s:"); ok {
		return signal.StringValue(s)
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		return parseList(strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]"))
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return signal.IntValue(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return signal.FloatValue(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return signal.BoolValue(b)
	}
	return signal.StringValue(raw)
}

// parseList keeps the narrowest element type every item satisfies.
func parseList(body string) signal.Value {
	if strings.TrimSpace(body) == "" {
		return signal.StringsValue(nil)
	}
	parts := strings.Split(body, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	ints := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			break
		}
		ints = append(ints, n)
	}
	if len(ints) == len(parts) {
		return signal.IntsValue(ints)
	}
	floats := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			break
		}
		floats = append(floats, f)
	}
	if len(floats) == len(parts) {
		return signal.FloatsValue(floats)
	}
	return signal.StringsValue(parts)
}
