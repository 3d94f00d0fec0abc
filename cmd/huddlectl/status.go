package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.GetStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Profile:   %s\n", resp.Profile)
			fmt.Printf("User:      %s (%s)\n", valueOrDefault(resp.Self.Name, "(no name)"), resp.Self.ID)
			fmt.Printf("Transport: %s\n", resp.Transport)
			fmt.Printf("Uptime:    %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).String())
			if resp.DroppedEvents > 0 {
				fmt.Printf("Dropped:   %d events\n", resp.DroppedEvents)
			}
			return nil
		})
	},
}
