package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/packetchat/internal/client"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		if errors.Is(err, client.ErrInvalidArgs) {
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat-client <username> <host> <port>",
		Short: "Interactive client for the packetchat server",
		Long: `chat-client joins the chat at <host>:<port> as <username>.

Type /help once connected for the list of commands.

Runtime settings come from the environment:
  CHAT_COLOURS, CHAT_DIAL_TIMEOUT, LOG_LEVEL`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 3 {
				return fmt.Errorf("%w: expected <username> <host> <port>, got %d arguments", client.ErrInvalidArgs, len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := client.ParseTarget(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return run(cmd.Context(), target)
		},
	}
}

func run(ctx context.Context, target client.Target) error {
	cfg, err := client.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(ctx, cfg, target)
	if err != nil {
		return err
	}
	log.Debug("Connected", "address", target.Address(), "username", target.Username)

	console := client.NewConsole(os.Stdin, os.Stdout, cfg.Colours)
	c := client.New(conn, target.Username, console, console, log)
	return c.Run(ctx)
}
