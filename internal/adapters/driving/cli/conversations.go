package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kb/internal/core/domain"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Browse conversation history",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Print every message of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

var (
	convLimit  int
	convOffset int
)

func init() {
	conversationsListCmd.Flags().IntVarP(&convLimit, "limit", "n", 20, "Maximum number of conversations (0 for all)")
	conversationsListCmd.Flags().IntVar(&convOffset, "offset", 0, "Number of conversations to skip")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func runConversationsList(cmd *cobra.Command, _ []string) error {
	if conversationService == nil {
		return errNotConfigured("conversation")
	}

	convs, err := conversationService.List(cmd.Context(), domain.ListOptions{Limit: convLimit, Offset: convOffset})
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	if len(convs) == 0 {
		cmd.Println("No conversations yet.")
		return nil
	}

	for _, c := range convs {
		cmd.Printf("  %s  %s  (%d messages, updated %s)\n",
			c.ID, c.Title, c.MessageCount, c.UpdatedAt.Local().Format(timeLayout))
	}
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errNotConfigured("conversation")
	}

	conv, msgs, err := conversationService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}

	cmd.Printf("%s\n", conv.Title)
	cmd.Printf("Started %s\n\n", conv.CreatedAt.Local().Format(timeLayout))
	for _, m := range msgs {
		cmd.Printf("[%d] %s:\n%s\n", m.Seq, m.Role, m.Content)
		if len(m.Sources) > 0 {
			printSources(cmd, m.Sources)
		}
		cmd.Println()
	}
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errNotConfigured("conversation")
	}

	if err := conversationService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	cmd.Printf("Deleted conversation: %s\n", args[0])
	return nil
}
