package main

import (
	"context"
	"fmt"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/spf13/cobra"
)

func init() {
	recordCmd.AddCommand(
		callActionCmd("start", "Start recording the remote stream", "StartRecording"),
		callActionCmd("stop", "Stop recording and write the artifact", "StopRecording"),
		resolveCmd("save", "Keep the recording offered after the call ended", true),
		resolveCmd("discard", "Drop the recording offered after the call ended", false),
	)
	callCmd.AddCommand(
		callStatusCmd,
		callDialCmd,
		callActionCmd("accept", "Accept the ringing call", "Accept"),
		callActionCmd("reject", "Reject the ringing call", "Reject"),
		callActionCmd("hangup", "End, cancel or reject the current call", "Hangup"),
		recordCmd,
	)
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Drive the peer-to-peer call",
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the remote stream of an active call",
}

var callStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the call state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.CallStatus(ctx)
			if err != nil {
				return err
			}
			printCall(resp)
			return nil
		})
	},
}

var callDialCmd = &cobra.Command{
	Use:   "dial <peer-id>",
	Short: "Call a reachable peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.Dial(ctx, args[0])
			if err != nil {
				return err
			}
			printCall(resp)
			return nil
		})
	},
}

func callActionCmd(use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.Client) error {
				resp, err := c.CallAction(ctx, method)
				if err != nil {
					return err
				}
				printCall(resp)
				return nil
			})
		},
	}
}

func resolveCmd(use, short string, save bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *api.Client) error {
				resp, err := c.ResolveRecording(ctx, save)
				if err != nil {
					return err
				}
				printCall(resp)
				return nil
			})
		},
	}
}

func printCall(resp *api.CallResponse) {
	if jsonFlag {
		outputJSON(resp)
		return
	}
	s := resp.Call
	fmt.Printf("Status:    %s\n", s.Status)
	if s.Peer != "" {
		dir := "outgoing"
		if s.Incoming {
			dir = "incoming"
		}
		fmt.Printf("Peer:      %s (%s)\n", s.Peer, dir)
	}
	fmt.Printf("Remote:    %v\n", s.RemoteStream)
	fmt.Printf("Recording: %v\n", s.Recording)
	switch {
	case s.NoMedia:
		fmt.Println("Media:     no device")
	case s.MediaReady:
		fmt.Println("Media:     ready")
	}
	if resp.Path != "" {
		fmt.Printf("Saved:     %s\n", resp.Path)
	}
}
