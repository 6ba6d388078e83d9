package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect the provider's signing keys",
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the provider's public key set (JWKS)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		raw, err := json.MarshalIndent(stack.Authority.Keys.PublicJWKS(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding jwks: %w", err)
		}
		fmt.Println(string(raw))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysShowCmd)

	f.bindConfigFlag(keysShowCmd.Flags())
}
