package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <peer-id>",
		Short: "Fetch a page of conversation history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 0, "Messages per page (default from config)")
	cmd.Flags().Int64("before", 0, "Fetch messages older than this id")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	peerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || peerID <= 0 {
		return fmt.Errorf("invalid peer id %q", args[0])
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Sync.PageSize
	}
	beforeID, _ := cmd.Flags().GetInt64("before")

	page, err := newClient(cfg).History(cmd.Context(), peerID, limit, beforeID)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	for _, m := range page.Messages {
		marker := " "
		if m.SenderID == cfg.Server.UserID {
			marker = ">"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %-8d %s  %s\n", marker, m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.Preview())
	}
	if page.HasMore && len(page.Messages) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "(more available before %d)\n", page.Messages[len(page.Messages)-1].ID)
	}
	return nil
}
