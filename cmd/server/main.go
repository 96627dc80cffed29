package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/packetchat/internal/server"
)

// usageError marks a command line problem, reported together with the usage text.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat-server <port>",
		Short: "Multi-user chat server speaking the packetchat binary protocol",
		Long: `chat-server accepts TCP clients on <port> and relays chat, emotes and
direct messages between them.

Runtime settings come from the environment (or a .env file):
  LOG_LEVEL, CHAT_HOST, HTTP_ADDR, ALLOWED_ORIGINS, READ_CHUNK_SIZE,
  SEND_QUEUE_SIZE, MAX_PAYLOAD_SIZE, WRITE_TIMEOUT, SHUTDOWN_TIMEOUT,
  RATE_LIMIT_BURST, RATE_LIMIT_REFILL_INTERVAL, CENSORED_WORDS, CENSOR_CHARACTER`,
		Args:          portArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := strconv.Atoi(args[0])
			return run(cmd.Context(), port)
		},
	}
}

func portArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError{fmt.Errorf("expected exactly one argument <port>, got %d", len(args))}
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 1 || port > 65535 {
		return usageError{fmt.Errorf("invalid port %q", args[0])}
	}
	return nil
}

// run loads the configuration, binds the listener and blocks until an
// interrupt or termination signal arrives.
func run(ctx context.Context, port int) error {
	cfg, err := server.LoadConfig(port)
	if err != nil {
		return err
	}
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}
