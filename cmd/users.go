package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/internal/users"
)

var (
	usersAddPassword string
	usersAddWebID    string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage local accounts",
}

var usersAddCmd = &cobra.Command{
	Use:   "add USERNAME",
	Short: "Create a local account",
	Long: `Creates a local account with a bcrypt-hashed password. Unless --webid
is given, the account's webid is derived from the provider issuer, with
the username as a subdomain label.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		if usersAddPassword == "" {
			return fmt.Errorf("password cannot be empty (use --password)")
		}

		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		webid := usersAddWebID
		if webid == "" {
			webid, err = users.WebIDFor(stack.Cfg.Issuer, username)
			if err != nil {
				return fmt.Errorf("deriving webid: %w", err)
			}
		}

		user, err := stack.Users.Create(username, usersAddPassword, webid)
		if err != nil {
			return logError(err, "", "failed to create account")
		}

		logSuccess("created account %s", bold(user.Username))
		log.Info().Msgf("webid: %s", user.WebID)
		return nil
	},
}

var usersRmCmd = &cobra.Command{
	Use:   "rm USERNAME",
	Short: "Delete a local account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		if err := stack.Users.Delete(args[0]); err != nil {
			return logError(err, "", "failed to delete account")
		}
		logSuccess("deleted account %s", bold(args[0]))
		return nil
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		names, err := stack.Users.List()
		if err != nil {
			return logError(err, "", "failed to list accounts")
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Username", "WebID", "Created"})

		for _, name := range names {
			user, err := stack.Users.Get(name)
			if err != nil {
				log.Warn().Err(err).Str("username", name).Msg("skipping unreadable account")
				continue
			}
			t.AppendRow(table.Row{
				user.Username,
				truncate(user.WebID, 60),
				user.CreatedAt.Format("2006-01-02"),
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd)
	usersCmd.AddCommand(usersRmCmd)
	usersCmd.AddCommand(usersListCmd)

	f.bindConfigFlag(usersCmd.PersistentFlags())

	usersAddCmd.Flags().StringVar(&usersAddPassword, "password", "", "Password for the new account")
	usersAddCmd.Flags().StringVar(&usersAddWebID, "webid", "", "WebID for the account (defaults to a subdomain of the issuer)")
}
