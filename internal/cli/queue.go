package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/outbox"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show messages waiting for delivery",
		Args:  cobra.NoArgs,
		RunE:  runQueue,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.AddCommand(newQueueClearCmd())
	return cmd
}

func runQueue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	pending := outbox.Open(kv, cfg.Server.UserID).Pending()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(pending, "", "  ")
		if err != nil {
			return fmt.Errorf("encode queue: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}
	for _, m := range pending {
		preview := m.Content
		if preview == "" {
			preview = m.FileName
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  to=%d  %s\n", shortQueueID(m.QueueID), m.RecipientID, preview)
	}
	return nil
}

// shortQueueID abbreviates a queue id for display. Entries written by
// older builds may carry ids shorter than the usual UUID.
func shortQueueID(id string) string {
	if id == "" {
		return "--------"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newQueueClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all queued messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			kv, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer kv.Close()

			queue := outbox.Open(kv, cfg.Server.UserID)
			dropped := queue.Flush(func(models.OutboundMessage) {})
			fmt.Fprintf(cmd.OutOrStdout(), "dropped %d messages\n", dropped)
			return nil
		},
	}
}
