package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE:  runContacts,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runContacts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	contacts, err := newClient(cfg).Contacts(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		payload, err := json.MarshalIndent(contacts, "", "  ")
		if err != nil {
			return fmt.Errorf("encode contacts: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return nil
	}

	for _, c := range contacts {
		status := "offline"
		if c.IsOnline {
			status = "online"
		}
		line := fmt.Sprintf("%-6d %-20s %s", c.ID, c.DisplayName, status)
		if c.UnreadCount > 0 {
			line += fmt.Sprintf("  (%d unread)", c.UnreadCount)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
