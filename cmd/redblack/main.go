// Command redblack generates keys, converts messages between red and black
// form, and runs sessions over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/secmsg/redblack-go/internal/config"
	"github.com/secmsg/redblack-go/pkg/redblack"
	"github.com/secmsg/redblack-go/pkg/redblack/logging"
	"github.com/secmsg/redblack-go/pkg/redblack/metrics"
)

const usage = `usage: redblack [-env file] <command> [flags]

commands:
  genkey   write a new key pair
  hello    print the hello message for a key
  encode   read a red message on stdin, write the black envelope
  decode   read a black envelope on stdin, write the red message
  serve    accept sessions over WebSocket
  call     send one request over a WebSocket session
  version  print the module version
`

// cli carries the process streams and settings shared by subcommands.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
	logger logging.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("redblack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env", "", "load settings from this .env file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	handler, err := logging.NewHandler(stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	c := &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		cfg:    cfg,
		logger: logging.New(slog.New(handler)),
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "genkey":
		err = c.genkey(rest)
	case "hello":
		err = c.hello(rest)
	case "encode":
		err = c.encode(rest)
	case "decode":
		err = c.decode(rest)
	case "serve":
		err = c.serve(ctx, rest)
	case "call":
		err = c.call(ctx, rest)
	case "version":
		fmt.Fprintln(stdout, redblack.ModuleVersion())
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "%s: %s: %v\n", cmd, metrics.Result(err), err)
		return 1
	}
	return 0
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) genkey(args []string) error {
	fs := c.flags("genkey")
	out := fs.String("out", "", "write the key pair to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := redblack.GenerateKeyPair()
	if err != nil {
		return err
	}
	if *out == "" {
		return writeJSON(c.stdout, kp)
	}
	if err := config.SaveKeyPair(*out, kp); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, kp.PublicKey)
	return nil
}

func (c *cli) hello(args []string) error {
	fs := c.flags("hello")
	keyFile := fs.String("key", c.cfg.KeyFile, "key pair file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := config.LoadKeyPair(*keyFile)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, redblack.NewHello(kp.PublicKey))
}

func (c *cli) encode(args []string) error {
	fs := c.flags("encode")
	keyFile := fs.String("key", c.cfg.KeyFile, "sender key pair file")
	to := fs.String("to", "", "recipient public key (hex)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *to == "" {
		return errors.New("-to is required")
	}

	kp, err := config.LoadKeyPair(*keyFile)
	if err != nil {
		return err
	}
	red, err := io.ReadAll(c.stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	defer redblack.ZeroizeBytes(red)
	if !json.Valid(red) {
		return errors.New("stdin is not a JSON document")
	}

	env, err := redblack.RedToBlack(kp.PrivateKey, *to, json.RawMessage(red))
	metrics.ObserveSeal("cli", err)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, env)
}

func (c *cli) decode(args []string) error {
	fs := c.flags("decode")
	keyFile := fs.String("key", c.cfg.KeyFile, "recipient key pair file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, err := config.LoadKeyPair(*keyFile)
	if err != nil {
		return err
	}
	frame, err := io.ReadAll(c.stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	env, err := redblack.ParseBlackMessage(frame)
	if err != nil {
		return err
	}

	red, err := redblack.BlackToRed(kp.PrivateKey, env)
	metrics.ObserveOpen("cli", err)
	if err != nil {
		if redblack.IsSecurityFailure(err) {
			c.logger.Warn(context.Background(), "envelope failed authentication", "spk", env.SpkHex)
		}
		return err
	}
	return writeJSON(c.stdout, red)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
