// lineage — инструмент командной строки воспроизводимых workflow.
//
// Использование:
//
//	lineage [--project DIR] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить команду и записать план с activity
//	status    Показать устаревшие выходы проекта
//	update    Пересчитать устаревшие выходы
//	rerun     Воспроизвести записанные выполнения
//	workflow  Управление планами и группами планов
//	activity  Просмотр записей выполнений
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vselutin/lineage/internal/cli"
	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// .env подхватывается до чтения конфигурации; отсутствие — норма
	godotenv.Load()
	logger := telemetry.SetupLogger()

	var projectRoot string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "lineage",
		Short:         "lineage — reproducible workflows with recorded provenance",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", "", "Project root (default: working directory)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	projectFn := func(ctx context.Context) (*project.Project, error) {
		return project.Open(ctx, projectRoot, logger)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(projectFn, outputFn),
		cli.NewStatusCmd(projectFn, outputFn),
		cli.NewUpdateCmd(projectFn, outputFn),
		cli.NewRerunCmd(projectFn, outputFn),
		cli.NewWorkflowCmd(projectFn, outputFn),
		cli.NewActivityCmd(projectFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
