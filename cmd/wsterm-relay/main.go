// Command wsterm-relay runs a WebSocket relay that forwards every message
// from one peer to all the others. It is handy for trying wsterm locally.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/omochice/wsterm/internal/logging"
	"github.com/omochice/wsterm/internal/relay"
	"github.com/omochice/wsterm/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("WSTERM_RELAY")
	v.AutomaticEnv()
	v.SetDefault("addr", ":8765")

	cmd := &cobra.Command{
		Use:          "wsterm-relay",
		Short:        "WebSocket relay for wsterm peers",
		Version:      version.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			log.Logger = logging.NewConsole(os.Stderr, level)

			return serve(v.GetString("addr"))
		},
	}

	cmd.Flags().String("addr", ":8765", "address to listen on")
	cmd.Flags().Bool("debug", false, "log at debug level")
	v.BindPFlag("addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func serve(addr string) error {
	srv := relay.New(addr, log.Logger)
	if err := srv.Listen(); err != nil {
		return err
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info().Stringer("signal", sig).Msg("Shutting down")
		srv.Stop()
		return <-errChan
	}
}
