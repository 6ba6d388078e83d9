package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solid/oidc-auth-manager/internal/cliconfig"
	"github.com/solid/oidc-auth-manager/pkg/client"
)

var loginCmd = &cobra.Command{
	Use:   "login TOKEN",
	Short: "Save an admin token for a provider",
	Long: `Verifies an admin token against the server's admin API and saves it
locally so future commands (audit log, clients list) can authenticate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		server := viper.GetString(ServerAddrKey)
		if server == "" {
			return fmt.Errorf("server address not configured, provide via --server or env")
		}
		u, err := url.Parse(server)
		if err != nil {
			return fmt.Errorf("parsing server URL: %w", err)
		}

		cli := client.New(server, client.WithAuthToken(token))

		log.Info().Msgf("Checking token against server %q...", u.Host)

		// the cheapest authenticated call proves the token is accepted
		if _, correlationID, err := cli.ListAudits(cmd.Context(), client.ListAuditsOpts{Limit: 1}); err != nil {
			log.Error().Msgf("%s server rejected the token (correlation ID: %s)", redCross, correlationID)
			log.Error().Msgf("error: %v", err)
			return BeQuietError{}
		}

		cfg, err := cliconfig.Load()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = &cliconfig.CLIConfig{}
		}
		if err := cfg.SetCredential(server, token); err != nil {
			return err
		}
		if err := cliconfig.Save(cfg); err != nil {
			return logError(err, "", "login succeeded but could not save credentials")
		}

		logSuccess("saved credentials for %s", bold(u.Host))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
