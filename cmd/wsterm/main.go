// Command wsterm is an interactive WebSocket client.
//
// It connects to a WebSocket server, sends every line typed on stdin as a
// text message and prints incoming messages above the prompt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/wsterm/internal/config"
	"github.com/omochice/wsterm/internal/logging"
	"github.com/omochice/wsterm/internal/session"
	"github.com/omochice/wsterm/internal/terminal"
	ws "github.com/omochice/wsterm/internal/transport/ws"
	"github.com/omochice/wsterm/internal/version"
)

// usageError reports invalid arguments. It exits with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// exitCode ends the command with a status after the message was printed.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var code exitCode
	if errors.As(err, &code) {
		return int(code)
	}
	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		cfgFile     string
		debug       bool
		showVersion bool
	)
	v := config.New()

	cmd := &cobra.Command{
		Use:           "wsterm [--version | <uri>]",
		Short:         "Interactive WebSocket client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case showVersion && len(args) > 0:
				return usageError{errors.New("argument <uri>: not allowed with argument --version")}
			case showVersion:
				return nil
			case len(args) == 0:
				return usageError{errors.New("the following arguments are required: <uri>")}
			case len(args) > 1:
				return usageError{fmt.Errorf("unrecognized arguments: %v", args[1:])}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(stdout, version.String())
				return nil
			}

			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return connect(cmd.Context(), args[0], cfg, debug, stdin, stdout, stderr)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.BoolVar(&showVersion, "version", false, "print the version and exit")
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.config/wsterm/config.yaml)")
	flags.BoolVar(&debug, "debug", false, "log at debug level")
	flags.String("log-file", "", "write diagnostics to this file")
	flags.StringArray("header", nil, "extra handshake header as \"Name: value\" (repeatable)")
	flags.StringArray("subprotocol", nil, "subprotocol to offer (repeatable)")
	flags.Duration("close-timeout", 0, "how long to wait for the closing handshake")

	v.BindPFlag("log.file", flags.Lookup("log-file"))
	v.BindPFlag("dial.headers", flags.Lookup("header"))
	v.BindPFlag("dial.subprotocols", flags.Lookup("subprotocol"))
	v.BindPFlag("close.timeout", flags.Lookup("close-timeout"))

	return cmd
}

func connect(ctx context.Context, uri string, cfg *config.Config, debug bool, stdin io.Reader, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.Log.Level, debug)
	if err != nil {
		return err
	}
	logger, closer, err := logging.NewFile(cfg.Log.File, level)
	if err != nil {
		return err
	}
	defer closer.Close()

	header, err := cfg.Dial.Header()
	if err != nil {
		return usageError{err}
	}

	logger.Info().Str("uri", uri).Msg("Connecting")
	conn, err := ws.Dial(ctx, uri, ws.Options{
		Header:       header,
		Protocols:    cfg.Dial.Subprotocols,
		DialTimeout:  cfg.Dial.Timeout,
		CloseTimeout: cfg.Close.Timeout,
		Logger:       &logger,
	})
	if err != nil {
		logger.Error().Err(err).Str("uri", uri).Msg("Failed to connect")
		fmt.Fprintf(stderr, "Failed to connect to %s: %v.\n", uri, err)
		return exitCode(1)
	}
	logger.Info().Str("uri", uri).Str("remote", conn.RemoteAddr()).Msg("Connected")

	printer := terminal.ForWriter(stdout)
	if err := printer.Println(fmt.Sprintf("Connected to %s.", uri)); err != nil {
		logger.Error().Err(err).Msg("Failed to write to terminal")
	}

	input := terminal.NewLineReader(stdin)
	defer input.Cancel()

	res := session.New(conn, input, printer,
		session.WithPrompt(cfg.Prompt),
		session.WithLogger(logger),
	).Run(ctx)

	if res.Trigger == session.TriggerInputError {
		fmt.Fprintf(stderr, "Failed to read input: %v.\n", res.Err)
		return exitCode(1)
	}
	return nil
}
