package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/tui"
	"github.com/openkraft/dsnscan/internal/domain"
)

type detectOutput struct {
	Root string              `json:"root"`
	Dsn  *domain.DetectedDsn `json:"dsn"`
}

type detectAllOutput struct {
	Root string `json:"root"`
	*domain.DetectionResult
}

func newDetectCmd() *cobra.Command {
	var (
		all        bool
		fresh      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "detect [path]",
		Short: "Detect the Sentry DSN for a directory",
		Long:  "Resolve the project root for path and report the DSN it uses. With --all, report every DSN found (monorepos may hold several).",
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

			root, err := svc.ProjectRoot(absPath)
			if err != nil {
				return fmt.Errorf("resolving project root: %w", err)
			}

			if all {
				detect := svc.LookupDetection
				if fresh {
					detect = svc.DetectAllDsns
				}
				res, err := detect(cmd.Context(), absPath)
				if err != nil {
					return fmt.Errorf("detection failed: %w", err)
				}
				if jsonOutput {
					return renderJSON(cmd, detectAllOutput{Root: root, DetectionResult: res})
				}
				fmt.Fprint(cmd.OutOrStdout(), tui.RenderDetection(root, res))
				return nil
			}

			d, err := svc.DetectDsn(cmd.Context(), absPath)
			if err != nil {
				return fmt.Errorf("detection failed: %w", err)
			}
			if jsonOutput {
				return renderJSON(cmd, detectOutput{Root: root, Dsn: d})
			}
			fmt.Fprint(cmd.OutOrStdout(), tui.RenderDsn(root, d))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Report every DSN instead of the primary one")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "With --all, ignore the detection cache")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func renderJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
