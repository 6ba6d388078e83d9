package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/pkg/client"
)

// auditLogCmd represents the audit command
var auditLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Retrieve and display audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		action, err := cmd.Flags().GetString("action")
		if err != nil {
			return err
		}
		webid, err := cmd.Flags().GetString("webid")
		if err != nil {
			return err
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:  uint(limit),
			Action: action,
			WebID:  webid,
		})
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log")
		}

		log.Info().Msgf("Retrieved %d audit entries", len(audits))

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{
			"Time", "Action", "WebID", "Username", "Granted", "Error",
		})

		for _, e := range audits {
			status := "YES"
			if !e.Granted {
				status = "NO"
			}

			subject := e.WebID
			if subject == "" {
				subject = "(unknown)"
			}

			t.AppendRow(table.Row{
				e.Time.Format(time.RFC3339),
				e.Action,
				truncate(subject, 35),
				e.Username,
				status,
				e.Error,
			})
		}

		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditLogCmd)

	auditLogCmd.Flags().IntP("limit", "n", 25, "Number of audit entries to retrieve")
	auditLogCmd.Flags().String("action", "", "Only show entries for this action (e.g. token.introspect)")
	auditLogCmd.Flags().String("webid", "", "Only show entries about this webid")
}
