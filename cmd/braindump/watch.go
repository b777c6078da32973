package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/braindump/pkg/client"
)

func createWatchCommand() *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the connection indicator driven by the heartbeat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), flags.client(), client.HeartbeatConfig{})
		},
	}
	flags.bind(cmd)
	return cmd
}

func runWatch(ctx context.Context, out io.Writer, c *client.Client, cfg client.HeartbeatConfig) error {
	cfg.OnStatus = func(s client.Status, failures int) {
		_, _ = fmt.Fprintln(out, statusLine(s, failures))
	}
	err := client.NewHeartbeat(c, cfg).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func statusLine(s client.Status, failures int) string {
	switch s {
	case client.StatusConnected:
		return "● Connected"
	case client.StatusReconnecting:
		return fmt.Sprintf("◐ Reconnecting... (%d)", failures)
	case client.StatusDisconnected:
		return "○ Disconnected"
	default:
		return "? Unknown"
	}
}
