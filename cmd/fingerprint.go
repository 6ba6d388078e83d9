package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/internal/audit"
)

var fingerprintRaw bool

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint [token]",
	Aliases: []string{"fp"},
	Short:   `Calculate the fingerprint of a token`,
	Long: `Calculates the SHA256 fingerprint of a token. This is the value the
audit log stores in the 'fingerprint' metadata field instead of the
token itself, so log entries can be matched to a token without ever
writing the token to disk.`,
	Example: `  # Calculate the fingerprint of a token
  oidc-auth-manager fingerprint eyJhbGciOi...

  # Calculate the fingerprint of a token from stdin
  pbpaste | oidc-auth-manager fingerprint -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readTokenArg(args[0])
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		fp := audit.TokenFingerprint(token)

		if fingerprintRaw {
			fmt.Println(fp)
		} else {
			fmt.Println("Fingerprint:", fp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().BoolVarP(&fingerprintRaw, "raw", "r", false,
		"Output only the fingerprint value without additional text")
}
