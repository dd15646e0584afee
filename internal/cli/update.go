package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/update"
)

// NewUpdateCmd создаёт команду пересчёта устаревших выходов.
func NewUpdateCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		all           bool
		dryRun        bool
		ignoreDeleted bool
		skipMetadata  bool
		providerName  string
		configFile    string
	)

	cmd := &cobra.Command{
		Use:   "update [PATHS...]",
		Short: "Re-execute the plans behind outdated outputs",
		Long: `Recompute outdated outputs by re-executing their plans with
current parameter defaults, in dependency order. Without paths --all
is required; with paths only the producers of those paths (and their
stale ancestors) run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			if len(args) == 0 && !all {
				return fmt.Errorf("specify paths to update or --all")
			}
			config, err := loadProviderConfig(configFile)
			if err != nil {
				return err
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			if !dryRun {
				release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
				if err != nil {
					return err
				}
				defer release()
			}

			summary, report, err := p.UpdateEngine().Update(ctx, update.Options{
				Paths:         args,
				All:           len(args) == 0,
				IgnoreDeleted: ignoreDeleted,
				DryRun:        dryRun,
				SkipMetadata:  skipMetadata,
				Provider:      providerName,
				Config:        config,
				Agent:         agentName,
			})
			if err != nil {
				return err
			}

			if !report.Clean() {
				out.Success(fmt.Sprintf("Planned %d units for %d stale outputs.",
					len(summary.Outcomes), len(report.StaleOutputs)))
			}
			printSummary(out, summary)
			return summary.Err()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Update every outdated output in the project")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the execution plan without running anything")
	cmd.Flags().BoolVar(&ignoreDeleted, "ignore-deleted", false, "Proceed even if previously generated outputs were deleted")
	cmd.Flags().BoolVar(&skipMetadata, "skip-metadata", false, "Execute without recording new activities")
	cmd.Flags().StringVar(&providerName, "provider", "", "Execution backend (default local)")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML file with backend configuration")

	return cmd
}

// NewRerunCmd создаёт команду воспроизведения записанных выполнений.
func NewRerunCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		from         []string
		dryRun       bool
		skipMetadata bool
		providerName string
		configFile   string
	)

	cmd := &cobra.Command{
		Use:   "rerun PATHS...",
		Short: "Replay the recorded executions that produced given paths",
		Long: `Re-execute the exact recorded plan versions and parameter values
that produced the given paths, including their upstream producers.
--from cuts the chain: producers of the named paths and everything
above them are taken as given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			config, err := loadProviderConfig(configFile)
			if err != nil {
				return err
			}

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			if !dryRun {
				release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
				if err != nil {
					return err
				}
				defer release()
			}

			summary, err := p.UpdateEngine().Rerun(ctx, update.RerunOptions{
				Paths:        args,
				From:         from,
				DryRun:       dryRun,
				SkipMetadata: skipMetadata,
				Provider:     providerName,
				Config:       config,
				Agent:        agentName,
			})
			if err != nil {
				return err
			}

			printSummary(out, summary)
			return summary.Err()
		},
	}

	cmd.Flags().StringArrayVar(&from, "from", nil, "Path whose producers are taken as given (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the execution plan without running anything")
	cmd.Flags().BoolVar(&skipMetadata, "skip-metadata", false, "Execute without recording new activities")
	cmd.Flags().StringVar(&providerName, "provider", "", "Execution backend (default local)")
	cmd.Flags().StringVar(&configFile, "config", "", "YAML file with backend configuration")

	return cmd
}
