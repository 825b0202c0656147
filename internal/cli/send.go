package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulsechat/internal/models"
	"github.com/pulsechat/pulsechat/internal/outbox"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer-id> <text...>",
		Short: "Queue a message for delivery",
		Long:  "Validates the message and places it on the offline queue; the next run delivers it.",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSend,
	}
	cmd.Flags().Int64("reply-to", 0, "Message id this replies to")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	peerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || peerID <= 0 {
		return fmt.Errorf("invalid peer id %q", args[0])
	}
	replyTo, _ := cmd.Flags().GetInt64("reply-to")

	draft := models.OutboundMessage{
		RecipientID: peerID,
		Content:     strings.Join(args[1:], " "),
		ReplyToID:   replyTo,
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return err
	}

	kv, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	queue := outbox.Open(kv, cfg.Server.UserID)
	queue.Enqueue(draft)

	fmt.Fprintf(cmd.OutOrStdout(), "queued (%d pending)\n", queue.Len())
	return nil
}
