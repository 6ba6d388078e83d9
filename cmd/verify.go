package cmd

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/internal/core"
)

var verifySkipSignature bool

var verifyCmd = &cobra.Command{
	Use:   "verify [token]",
	Short: "Run the webid trust decision for a token locally",
	Long: `Parses a token against the provider's own keys and walks the same
trust decision the introspection endpoint runs: does the token's
issuer speak for the webid it claims? Use --skip-signature to inspect
a token another provider signed.

Note: this command needs the provider configuration, since the
decision depends on the configured issuer and the stored signing keys.`,
	Example: `  # Verify a token this provider issued
  oidc-auth-manager verify -c oidc-auth-manager.yml eyJhbGciOi...

  # Walk the decision for a foreign token without checking its signature
  pbpaste | oidc-auth-manager verify -c oidc-auth-manager.yml --skip-signature -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readTokenArg(args[0])
		if err != nil {
			return err
		}
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		fmt.Println(bold("\n── Trust Decision ──"))

		mapClaims := jwt.MapClaims{}
		if verifySkipSignature {
			if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
				fmt.Printf("  %s token is not a parseable JWT: %v\n\n", redCross, err)
				return BeQuietError{}
			}
			fmt.Printf("  %s signature check skipped\n", faint("-"))
		} else {
			parsed, err := jwt.Parse(token, stack.Authority.Keys.Keyfunc)
			if err != nil {
				fmt.Printf("  %s signature rejected: %v\n\n", redCross, err)
				return BeQuietError{}
			}
			mapClaims = parsed.Claims.(jwt.MapClaims)
			fmt.Printf("  %s signature valid\n", greenCheck)
		}

		claims := core.Claims(mapClaims)
		fmt.Printf("  %s %s\n", faint("issuer:"), claims.Issuer())
		if webid := claims.WebID(); webid != "" {
			fmt.Printf("  %s  %s\n", faint("webid:"), webid)
		} else {
			fmt.Printf("  %s    %s\n", faint("sub:"), claims.Sub())
		}

		webid, err := stack.Verifier.VerifyWebID(cmd.Context(), claims)
		if err != nil {
			fmt.Printf("  %s trust denied: %v\n\n", redCross, err)
			return BeQuietError{}
		}
		fmt.Printf("  %s issuer speaks for %s\n", greenCheck, bold(webid))

		if aud := claims.Audience(); len(aud) > 0 {
			if stack.Verifier.FilterAudience(aud) {
				fmt.Printf("  %s audience includes this provider\n", greenCheck)
			} else {
				fmt.Printf("  %s audience %v does not include this provider\n\n", redCross, aud)
				return BeQuietError{}
			}
		}

		fmt.Printf("\nDecision: %s\n\n", bold(green("trusted")))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().BoolVar(&verifySkipSignature, "skip-signature", false,
		"Parse the token without verifying its signature")
	f.bindConfigFlag(verifyCmd.Flags())
}
