package cmd

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "Inspect relying party registrations",
}

// clientsListCmd lists the client registrations the provider holds, one
// per upstream issuer plus the provider's own local client.
var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered relying party clients",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching client registrations...")
		clients, correlation, err := cli.ListClients(cmd.Context())
		if err != nil {
			return logError(err, correlation, "failed to list clients")
		}

		log.Info().Msgf("Retrieved %d registrations", len(clients))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Issuer", "Client ID", "Redirect URIs", "Registered"})

		for _, c := range clients {
			t.AppendRow(table.Row{
				c.Issuer,
				truncate(c.ClientID, 40),
				truncate(strings.Join(c.RedirectURIs, ", "), 50),
				c.RegisteredAt.Format("2006-01-02"),
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(clientsListCmd)
}
