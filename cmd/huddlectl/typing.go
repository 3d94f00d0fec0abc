package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	stopTypingFlag bool
	watchPrefix    string
)

func init() {
	typingCmd.Flags().BoolVar(&stopTypingFlag, "stop", false, "cancel the pending typing indicator")
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only show events whose kind starts with this prefix")
	rootCmd.AddCommand(typingCmd, watchCmd)
}

var typingCmd = &cobra.Command{
	Use:   "typing <peer-id>",
	Short: "Register a keystroke towards a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			_, err := c.Typing(ctx, &api.TypingRequest{PeerID: args[0], Stop: stopTypingFlag})
			return err
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialDaemon()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.WatchEvents(ctx, watchPrefix, func(evt *api.Event) error {
			if jsonFlag {
				outputJSON(evt)
				return nil
			}
			fmt.Printf("%s  %-28s %s\n", evt.OccurredAt.Local().Format("15:04:05.000"), evt.Kind, string(evt.Payload))
			return nil
		})
		if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
			return nil
		}
		return err
	},
}
