package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/spf13/cobra"
)

var (
	peerNameFlag string
	everyoneFlag bool
	attachFlag   string
)

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsShowCmd, conversationsStartCmd, conversationsReadCmd, conversationsRemoveCmd)
	conversationsStartCmd.Flags().StringVar(&peerNameFlag, "name", "", "display name for the peer")
	sendCmd.Flags().StringVar(&peerNameFlag, "name", "", "display name for the recipient")
	sendCmd.Flags().StringVar(&attachFlag, "attach", "", "file to send as an attachment")
	deleteCmd.Flags().BoolVar(&everyoneFlag, "everyone", false, "also delete the message on the peer's device")
	rootCmd.AddCommand(conversationsCmd, sendCmd, deleteCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Inspect and manage conversations",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations in the local cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ListConversations(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			if len(resp.Conversations) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			for _, s := range resp.Conversations {
				marker := " "
				if s.Selected {
					marker = "*"
				}
				last := ""
				if s.LastMessage != nil {
					last = preview(*s.LastMessage)
				}
				fmt.Printf("%s %-36s %-20s %3d msgs %3d unread  %s\n",
					marker, s.ID, valueOrDefault(s.Peer.Name, s.Peer.ID), s.MessageCount, s.Unread, last)
			}
			return nil
		})
	},
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation and select it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.GetConversation(ctx, &api.GetConversationRequest{ConversationID: args[0]})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			conv := resp.Conversation
			fmt.Printf("Conversation %s\n", conv.ID)
			for _, p := range conv.Participants {
				fmt.Printf("  with %s (%s)\n", valueOrDefault(p.Name, "(no name)"), p.ID)
			}
			fmt.Println()
			for _, m := range conv.Messages {
				unread := ""
				if m.Unread {
					unread = " [unread]"
				}
				fmt.Printf("%s  %s: %s%s  (%s)\n",
					m.CreatedAt.Local().Format("2006-01-02 15:04"), valueOrDefault(m.Sender.Name, m.Sender.ID), preview(m), unread, m.ID)
			}
			return nil
		})
	},
}

var conversationsStartCmd = &cobra.Command{
	Use:   "start <peer-id>",
	Short: "Open (or select) the conversation with a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.StartConversation(ctx, &api.StartConversationRequest{
				Peer: store.Participant{ID: args[0], Name: peerNameFlag},
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Conversation %s (%d messages)\n", resp.Conversation.ID, len(resp.Conversation.Messages))
			return nil
		})
	},
}

var conversationsReadCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark every message in a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.MarkRead(ctx, &api.MarkReadRequest{ConversationID: args[0]})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Marked %d messages read\n", resp.Marked)
			return nil
		})
	},
}

var conversationsRemoveCmd = &cobra.Command{
	Use:   "remove <conversation-id>",
	Short: "Remove a conversation from the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			if _, err := c.RemoveConversation(ctx, &api.RemoveConversationRequest{ConversationID: args[0]}); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <peer-id> [text...]",
	Short: "Send a message to a peer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &api.SendMessageRequest{
			To:      store.Participant{ID: args[0], Name: peerNameFlag},
			Content: strings.Join(args[1:], " "),
		}
		if attachFlag != "" {
			data, err := readAttachment(attachFlag)
			if err != nil {
				return err
			}
			req.Attachment = data
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.SendMessage(ctx, req)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Sent %s in %s\n", resp.Message.ID, resp.Message.ConversationID)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id> <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			_, err := c.DeleteMessage(ctx, &api.DeleteMessageRequest{
				ConversationID: args[0],
				MessageID:      args[1],
				Everyone:       everyoneFlag,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[1])
			return nil
		})
	},
}

func preview(m store.Message) string {
	switch {
	case m.Deleted:
		return "(deleted)"
	case m.Content != "":
		return m.Content
	case len(m.Attachment) > 0:
		return fmt.Sprintf("(attachment, %d bytes)", len(m.Attachment))
	}
	return ""
}
