package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/queuedev/internal/client"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/logging"
)

const usage = `usage: devctl [flags] <command> [args]

commands:
  open                    open a handle and print its ID
  close <handle>          close a handle, discarding its queue
  write <handle> [data]   write data, or stdin when data is omitted or "-"
  read <handle> [max]     read up to max bytes (default: capacity) to stdout
  mode <name>             set the mode: shared, exclusive or per_handle
  stats                   print device statistics as JSON
  health                  check the server is up

flags:
`

// errUsage marks errors caused by bad arguments
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := config.LoadOrDefault()

	fs := flag.NewFlagSet("devctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	url := fs.String("url", cfg.Client.URL, "Device server URL (DEVICE_URL)")
	timeout := fs.Duration("timeout", cfg.Client.Timeout, "Request timeout (CLIENT_TIMEOUT)")
	retries := fs.Int("retries", cfg.Client.Retries, "Retries for requests the server never received (CLIENT_RETRIES)")
	verbose := fs.Bool("v", false, "Log requests to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	logger := logging.NewNop()
	if *verbose {
		if l, err := logging.New(logging.Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}); err == nil {
			logger = l
		}
	}
	defer logger.Sync()

	ccfg := client.DefaultConfig()
	ccfg.BaseURL = *url
	ccfg.Timeout = *timeout
	ccfg.Retries = *retries
	ccfg.Logger = logger.Logger
	c := client.New(ccfg)

	if err := dispatch(ctx, c, fs.Args(), stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "devctl: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, c *client.Client, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "open":
		h, err := c.Open(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, h.ID)
		return nil

	case "close":
		if len(rest) != 1 {
			return fmt.Errorf("%w: close <handle>", errUsage)
		}
		return c.Close(ctx, rest[0])

	case "write":
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("%w: write <handle> [data]", errUsage)
		}
		var data []byte
		if len(rest) == 2 && rest[1] != "-" {
			data = []byte(rest[1])
		} else {
			var err error
			if data, err = io.ReadAll(io.LimitReader(stdin, device.Capacity+1)); err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}
		n, err := c.Write(ctx, rest[0], data)
		if err != nil {
			return fmt.Errorf("%w (%d bytes written)", err, n)
		}
		fmt.Fprintln(stdout, n)
		return nil

	case "read":
		if len(rest) < 1 || len(rest) > 2 {
			return fmt.Errorf("%w: read <handle> [max]", errUsage)
		}
		limit := device.Capacity
		if len(rest) == 2 {
			v, err := strconv.Atoi(rest[1])
			if err != nil || v < 0 {
				return fmt.Errorf("%w: max must be a non-negative integer", errUsage)
			}
			limit = v
		}
		data, err := c.Read(ctx, rest[0], limit)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err

	case "mode":
		if len(rest) != 1 {
			return fmt.Errorf("%w: mode <shared|exclusive|per_handle>", errUsage)
		}
		mode, err := device.ParseMode(rest[0])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		got, err := c.Control(ctx, mode.Command())
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, got)
		return nil

	case "stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)

	case "health":
		if err := c.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
