package cmd

import (
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the provider's audit log",
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
