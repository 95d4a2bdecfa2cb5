package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the DSN detection cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [path]",
		Short: "Forget cached DSNs for a project (or every project with --all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			absPath, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			logger := newLogger(cmd)
			svc, err := newDetectService(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer closeQuietly(svc, logger)

			if err := svc.ClearCache(cmd.Context(), absPath, all); err != nil {
				return fmt.Errorf("clearing cache: %w", err)
			}
			if all {
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared the DSN cache for all projects.")
				return nil
			}
			root, err := svc.ProjectRoot(absPath)
			if err != nil {
				return fmt.Errorf("resolving project root: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared the DSN cache for %s.\n", root)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Clear every cached project")
	return cmd
}
