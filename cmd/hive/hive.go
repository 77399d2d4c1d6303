// Program hive is a command-line utility for interacting with hive peers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/hive"
	"github.com/creachadair/hive/catalog"
	"github.com/creachadair/hive/config"
	"github.com/creachadair/hive/internal/logging"
	"github.com/creachadair/hive/markup"
	"github.com/creachadair/hive/peers"
	"github.com/rs/zerolog"
)

var rootFlags struct {
	Verbose bool `flag:"v,Enable debug logging"`
}

var parseFlags struct {
	HTML    bool `flag:"html,Render the document as HTML"`
	Compact bool `flag:"compact,Render the document in its canonical wire form"`
	Level   int  `flag:"level,default=0,Base indentation level"`
}

var sendFlags struct {
	Addr    string        `flag:"addr,default=localhost:37000,Peer address (host:port)"`
	Wait    time.Duration `flag:"wait,Wait this long for replies before closing"`
	History string        `flag:"history,Request a timing report tagged with this uid"`
}

var listenFlags struct {
	Addr    string `flag:"addr,default=localhost:37000,Listen address (host:port)"`
	History bool   `flag:"history,Report the handling time of invokes that request it"`
}

var topologyFlags struct {
	Format string `flag:"format,default=xml,Output format (xml, yaml, toml)"`
}

func main() {
	root := &command.C{
		Name:     filepath.Base(os.Args[0]),
		Help:     "Utilities for interacting with hive peers.",
		SetFlags: command.Flags(flax.MustBind, &rootFlags),
		Commands: []*command.C{
			{
				Name:     "parse",
				Usage:    "[file|-]",
				Help:     "Parse a document and render it to stdout.",
				SetFlags: command.Flags(flax.MustBind, &parseFlags),
				Run:      runParse,
			},
			{
				Name:  "send",
				Usage: "<listener> [arg ...]",
				Help: `Send one invoke to a peer.

Each argument becomes one parameter of the invoke. An argument that parses
as a number is sent as a number, "true" and "false" are sent as booleans,
an argument beginning with "<" that parses as a document is sent as a
fragment, and anything else is sent as a string.

Invokes sent and received are printed to stdout.`,
				SetFlags: command.Flags(flax.MustBind, &sendFlags),
				Run:      runSend,
			},
			{
				Name: "listen",
				Help: `Accept connections from peers and log their invokes.

Each peer is served a catalog of the listeners of this program, and the
"echo" listener replies with an "echoReply" invoke carrying the same
arguments.`,
				SetFlags: command.Flags(flax.MustBind, &listenFlags),
				Run:      runListen,
			},
			{
				Name:     "topology",
				Usage:    "<file>",
				Help:     "Load a topology file (.yaml, .toml, or .xml) and print it.",
				SetFlags: command.Flags(flax.MustBind, &topologyFlags),
				Run:      runTopology,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func newLogger() zerolog.Logger {
	cfg := logging.Config{App: "hive", Level: zerolog.InfoLevel}.FromEnv()
	if rootFlags.Verbose {
		cfg.Level = zerolog.DebugLevel
	}
	return cfg.New(os.Stderr)
}

func runParse(env *command.Env) error {
	if len(env.Args) > 1 {
		return env.Usagef("extra arguments after input: %q", env.Args[1:])
	}
	var data []byte
	var err error
	if len(env.Args) == 0 || env.Args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(env.Args[0])
	}
	if err != nil {
		return err
	}
	n, err := markup.Parse(string(data))
	if err != nil {
		return err
	}
	switch {
	case parseFlags.HTML:
		fmt.Println(n.HTML(parseFlags.Level))
	case parseFlags.Compact:
		fmt.Println(n.String())
	default:
		fmt.Println(n.Indent(parseFlags.Level))
	}
	return nil
}

func splitAddr(addr string) (string, int, error) {
	host, ps, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(ps, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", ps)
	}
	return host, int(port), nil
}

// parseArg converts a command-line argument to an invoke argument.
func parseArg(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "<") {
		if n, err := markup.Parse(s); err == nil {
			return n
		}
	}
	return s
}

func printInvoke(v hive.InvokeInfo) { fmt.Println(v.String()) }

func runSend(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("missing listener name")
	}
	host, port, err := splitAddr(sendFlags.Addr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	var args []any
	if sendFlags.History != "" {
		args = append(args, hive.NewParameter(hive.HistoryParam, sendFlags.History))
	}
	for _, s := range env.Args[1:] {
		args = append(args, parseArg(s))
	}

	ctx := env.Context()
	sys := hive.NewSystem("peer", host, port, hive.WithLogger(newLogger()))
	sys.Connector().LogInvokes(printInvoke)
	if err := sys.Start(ctx); err != nil {
		return err
	}
	err = sys.SendData(ctx, hive.NewInvoke(env.Args[0], args...))
	if err == nil && sendFlags.Wait > 0 {
		select {
		case <-time.After(sendFlags.Wait):
		case <-ctx.Done():
		}
	}
	return errors.Join(err, sys.Close())
}

func runListen(env *command.Env) error {
	log := newLogger()
	ctx, cancel := signal.NotifyContext(env.Context(), os.Interrupt)
	defer cancel()

	lst, err := new(net.ListenConfig).Listen(ctx, "tcp", listenFlags.Addr)
	if err != nil {
		return err
	}
	defer lst.Close()
	log.Info().Str("addr", lst.Addr().String()).Msg("listening")

	var opts []hive.Option
	opts = append(opts, hive.WithLogger(log))
	if listenFlags.History {
		opts = append(opts, hive.WithHistory())
	}
	arr := hive.NewSystemArray("listen", opts...)
	return peers.Loop(ctx, peers.NetAccepter(lst), arr, func(conn net.Conn) *hive.System {
		name := conn.RemoteAddr().String()
		sys := hive.NewSystem(name, "", 0, opts...)
		sys.Connector().
			LogInvokes(func(v hive.InvokeInfo) { log.Info().Str("peer", name).Msg(v.String()) }).
			OnOpen(func() { log.Info().Str("peer", name).Msg("peer connected") }).
			OnClose(func(err error) { log.Info().Str("peer", name).AnErr("status", err).Msg("peer disconnected") })
		sys.AddRole("echo", "echoReply").Handle("echo", func(ctx context.Context, args []any) error {
			return hive.ContextRole(ctx).SendData(ctx, hive.NewInvoke("echoReply", args...))
		})
		return catalog.Serve(sys)
	})
}

func runTopology(env *command.Env) error {
	if len(env.Args) != 1 {
		return env.Usagef("exactly one topology file is required")
	}
	t, err := config.Load(env.Args[0])
	if err != nil {
		return err
	}
	out, err := t.Encode(config.Format(topologyFlags.Format))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
