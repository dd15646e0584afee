package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/record"
)

// NewRunCmd создаёт команду захвата выполнения.
func NewRunCmd(projectFn ProjectFn, outputFn OutputFn) *cobra.Command {
	var (
		name         string
		description  string
		keywords     []string
		successCodes []int
		inputs       []string
		outputs      []string
		params       []string
		noOutput     bool
		skipMetadata bool
		workDir      string
	)

	cmd := &cobra.Command{
		Use:   "run [flags] -- COMMAND [ARGS...]",
		Short: "Execute a command and record it as a reusable plan",
		Long: `Execute a command, detect its inputs and outputs and record
a plan plus an activity. Token classification is automatic; --input,
--output and --param override it for individual values.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			p, err := projectFn(ctx)
			if err != nil {
				return err
			}
			defer p.Close()

			release, err := p.Lock.Acquire(ctx, p.Root, project.DefaultLockTimeout)
			if err != nil {
				return err
			}
			defer release()

			result, err := p.Recorder().Run(ctx, args, record.Options{
				Name:         name,
				Description:  description,
				Keywords:     keywords,
				SuccessCodes: successCodes,
				Inputs:       parseAnnotations(inputs),
				Outputs:      parseAnnotations(outputs),
				Params:       parseAnnotations(params),
				NoOutput:     noOutput,
				WorkDir:      workDir,
				Agent:        agentName,
				SkipMetadata: skipMetadata,
			})
			if err != nil {
				return err
			}

			headers := []string{"PARAMETER", "KIND", "POSITION", "VALUE"}
			rows := make([][]string, 0, len(result.Plan.Parameters))
			for _, param := range result.Plan.Parameters {
				rows = append(rows, []string{
					param.Name,
					string(param.Kind),
					strconv.Itoa(param.Position),
					param.Default,
				})
			}
			out.Print(headers, rows, result)

			if skipMetadata {
				out.Success(fmt.Sprintf("Executed %q, nothing recorded (--skip-metadata).", result.Plan.Name))
				return nil
			}
			out.Success(fmt.Sprintf("Recorded plan %q, activity %s.", result.Plan.Name, result.Activity.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Plan name (default: command executable)")
	cmd.Flags().StringVar(&description, "description", "", "Plan description")
	cmd.Flags().StringArrayVar(&keywords, "keyword", nil, "Plan keyword (repeatable)")
	cmd.Flags().IntSliceVar(&successCodes, "success-code", nil, "Exit code treated as success (repeatable)")
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Explicit input as path or name=path (repeatable)")
	cmd.Flags().StringArrayVar(&outputs, "output", nil, "Explicit output as path or name=path (repeatable)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Explicit parameter as value or name=value (repeatable)")
	cmd.Flags().BoolVar(&noOutput, "no-output", false, "Allow a run that produces no outputs")
	cmd.Flags().BoolVar(&skipMetadata, "skip-metadata", false, "Execute without recording plan or activity")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Working directory relative to the project root")

	return cmd
}
