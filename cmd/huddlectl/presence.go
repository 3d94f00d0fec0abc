package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/spf13/cobra"
)

var unreadOnlyFlag bool

func init() {
	notificationsListCmd.Flags().BoolVar(&unreadOnlyFlag, "unread", false, "only show unread notifications")
	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd)
	rootCmd.AddCommand(presenceCmd, notificationsCmd)
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "Show the presence roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ListPresence(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if len(resp.Entries) == 0 {
				fmt.Println("Nobody is reachable.")
				return nil
			}
			for _, e := range resp.Entries {
				fmt.Printf("%-24s %-12s %s\n", e.UserID, e.Availability, e.PeerHandle)
			}
			return nil
		})
	},
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Inspect incoming-message notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ListNotifications(ctx, &api.ListNotificationsRequest{UnreadOnly: unreadOnlyFlag})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("%d unread\n", resp.Unread)
			for _, n := range resp.Notifications {
				mark := " "
				if n.Unread {
					mark = "*"
				}
				fmt.Printf("%s %s  %s from %s\n", mark, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Type, valueOrDefault(n.Sender.Name, n.Sender.ID))
			}
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark every notification as read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.MarkNotificationsRead(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Cleared %d notifications\n", resp.Cleared)
			return nil
		})
	},
}
