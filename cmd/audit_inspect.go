package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/pkg/client"
)

var auditInspectCmd = &cobra.Command{
	Use:     "inspect CORRELATION-ID",
	Short:   "Show full details of a specific audit log entry",
	Example: `  oidc-auth-manager audit inspect d1kq34ur873bs66ageag`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		correlationID := args[0]
		if correlationID == "" {
			return fmt.Errorf("correlation ID cannot be empty")
		}

		cli, err := f.GetClient()
		if err != nil {
			return err
		}

		log.Debug().Msgf("Retrieving entry with correlation ID '%s'...", correlationID)
		audits, correlation, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{
			Limit:         1,
			CorrelationID: correlationID,
		})
		if err != nil {
			return logError(err, correlation, "failed to retrieve audit log entry")
		}
		if len(audits) == 0 {
			log.Warn().Str("correlation_id", correlationID).Msg("no audit log entries found")
			return nil
		}

		entry := audits[0]

		printKV := func(key string, val any) {
			fmt.Printf("  %-26s %v\n", faint(key)+":", val)
		}

		printMap := func(m map[string]any) {
			if len(m) == 0 {
				fmt.Printf("       %s\n", faint("(none)"))
				return
			}
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				fmt.Printf("       %-16s %v\n", faint(k)+":", m[k])
			}
		}

		status := green("granted")
		if !entry.Granted {
			status = red("denied")
		}

		fmt.Println(bold("\n── Audit Entry ──"))
		printKV("Correlation ID", entry.ID)
		printKV("Time", entry.Time.Local().Format(time.RFC1123))
		printKV("Action", entry.Action)
		printKV("Decision", status)

		fmt.Println(bold("\n── Identity ──"))
		if entry.WebID != "" {
			printKV("WebID", entry.WebID)
		} else {
			printKV("WebID", faint("(unknown)"))
		}
		if entry.Issuer != "" {
			printKV("Issuer", entry.Issuer)
		} else {
			printKV("Issuer", faint("(none)"))
		}
		if entry.Username != "" {
			printKV("Username", entry.Username)
		}

		fmt.Println(bold("\n── Details ──"))
		if entry.Error != "" {
			printKV("Error Message", red(entry.Error))
		}
		printKV("Metadata", "")
		printMap(entry.Metadata)
		fmt.Println()

		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditInspectCmd)
}
