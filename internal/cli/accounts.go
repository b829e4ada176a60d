package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/traderclient/client"
)

func newAccountsCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Administer server accounts",
	}

	var adminToken string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every account (admin token required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := adminToken
			if token == "" {
				token = rc.cfg.AdminToken
			}
			accounts, err := client.ListAccounts(cmd.Context(), rc.cfg.URL, token, client.WithLogger(rc.logger))
			if err != nil {
				return err
			}
			return printJSON(cmd, accounts)
		},
	}
	list.Flags().StringVar(&adminToken, "admin-token", "", "Admin token (default from config)")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an account with its own token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.DeleteAccount(cmd.Context(), rc.cfg.URL, args[0], rc.cfg.Token, client.WithLogger(rc.logger)); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "account %s deleted\n", args[0])
			return err
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
