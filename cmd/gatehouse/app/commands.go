// Package app provides the entry point for the gatehouse command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gatehouse-dev/gatehouse/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "gatehouse",
	DisableAutoGenTag: true,
	Short:             "Gatehouse is a pluggable HTTP authentication and authorization server",
	Long: `Gatehouse guards HTTP applications with a composite authentication backend
(HTTP Basic, login form, OAuth2 authorization-code and client TLS certificates)
probing a single user/permission store, server-side sessions, and
permission-set based authorization.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates a new root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
