package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pulsechat/pulsechat/internal/config"
)

func newContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show or change the remembered conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := config.DefaultContextStore().Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), saved.String())
			return nil
		},
	}
	cmd.AddCommand(newContextSetCmd(), newContextClearCmd())
	return cmd
}

func newContextSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <peer-id> [name]",
		Short: "Remember a conversation for the next run",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || peerID <= 0 {
				return fmt.Errorf("invalid peer id %q", args[0])
			}
			name := ""
			if len(args) > 1 {
				name = args[1]
			}

			store := config.DefaultContextStore()
			saved, err := store.Load()
			if err != nil {
				return err
			}
			saved.SetConversation(peerID, name)
			if err := store.Save(saved); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), saved.String())
			return nil
		},
	}
}

func newContextClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the remembered conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.DefaultContextStore().Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
}
