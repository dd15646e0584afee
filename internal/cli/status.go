package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/status"
	"github.com/vselutin/lineage/internal/telemetry"
)

// NewStatusCmd создаёт команду вычисления статуса проекта.
func NewStatusCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var ignoreDeleted bool

	cmd := &cobra.Command{
		Use:   "status [PATHS...]",
		Short: "Show which outputs are outdated and why",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.StatusEngine().Compute(ctx, status.Options{
				Paths:         args,
				IgnoreDeleted: ignoreDeleted,
			})
			if err != nil {
				return err
			}
			telemetry.ObserveStatus(report.Clean())

			headers := []string{"STATE", "PATH", "DETAIL"}
			rows := make([][]string, 0,
				len(report.StaleOutputs)+len(report.ModifiedInputs)+len(report.DeletedOutputs)+len(report.UpToDate))
			for _, stale := range report.StaleOutputs {
				rows = append(rows, []string{"stale", stale.Path, strings.Join(stale.Causes, ", ")})
			}
			for _, deleted := range report.DeletedOutputs {
				rows = append(rows, []string{"deleted", deleted.Path, "activity " + deleted.ActivityID.String()})
			}
			for _, modified := range report.ModifiedInputs {
				rows = append(rows, []string{"modified", modified.Path,
					shortHash(string(modified.Recorded)) + " -> " + shortHash(string(modified.Current))})
			}
			for _, path := range report.UpToDate {
				rows = append(rows, []string{"ok", path, ""})
			}
			out.Print(headers, rows, report)

			if report.Clean() {
				out.Success(fmt.Sprintf("Everything up to date (%d outputs).", len(report.UpToDate)))
			} else {
				out.Success(fmt.Sprintf("%d stale, %d deleted, %d modified inputs.",
					len(report.StaleOutputs), len(report.DeletedOutputs), len(report.ModifiedInputs)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ignoreDeleted, "ignore-deleted", false, "Treat deleted outputs as non-blocking")

	return cmd
}
