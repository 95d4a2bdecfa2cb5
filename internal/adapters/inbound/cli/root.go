package cli

import "github.com/spf13/cobra"

var (
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dsnscan",
		Short:         "Find the Sentry DSN your project uses",
		Long:          "dsnscan locates the Sentry DSN for a working directory by scanning source files, .env files and SENTRY_DSN, and caches the answer per project.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Bool("verbose", false, "Log cache and scan diagnostics to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDetectCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newMCPCmd())
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	return newRootCmd().Execute()
}
