package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize provider state in the store",
	Long: `Creates the storage namespaces, generates the provider's signing keys
when none exist yet, and registers the provider's own relying-party client.
Running it again is safe; existing keys and registrations are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		logSuccess("provider state ready for %s", bold(stack.Cfg.Issuer))
		log.Info().Msgf("store: %s", stack.Cfg.DBPath)
		log.Info().Msgf("id token key: %s", stack.Authority.Keys.IDTokenKey.KeyID)
		log.Info().Msgf("access token key: %s", stack.Authority.Keys.AccessTokenKey.KeyID)

		if local, err := stack.Clients.Local(); err == nil {
			log.Info().Msgf("local client id: %s", local.ClientID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	f.bindConfigFlag(initCmd.Flags())
}
