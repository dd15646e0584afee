package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vselutin/lineage/internal/coordinator"
	"github.com/vselutin/lineage/internal/project"
	"github.com/vselutin/lineage/internal/record"
)

// agentName записывается в activities, созданные из CLI.
const agentName = "lineage-cli"

// ProjectFn — фабрика проекта: вызывается после разбора flags,
// чтобы команды help/usage не трогали базу.
type ProjectFn func(ctx context.Context) (*project.Project, error)

// OutputFn — фабрика вывода с учётом флага --json.
type OutputFn func() *Output

// parseAnnotations разбирает значения --input/--output/--param.
//
// Форма "name=value" задаёт имя параметра явно; голое значение
// получает автогенерированное имя при записи плана.
func parseAnnotations(raw []string) []record.Annotation {
	annotations := make([]record.Annotation, 0, len(raw))
	for _, s := range raw {
		name, value, found := strings.Cut(s, "=")
		if !found {
			annotations = append(annotations, record.Annotation{Value: s})
			continue
		}
		annotations = append(annotations, record.Annotation{Name: name, Value: value})
	}
	return annotations
}

// parseOverrides разбирает значения --set вида "path=value".
func parseOverrides(raw []string) (map[string]string, error) {
	overrides := make(map[string]string, len(raw))
	for _, s := range raw {
		name, value, found := strings.Cut(s, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid --set value %q: expected name=value", s)
		}
		if _, dup := overrides[name]; dup {
			return nil, fmt.Errorf("duplicate --set value for %q", name)
		}
		overrides[name] = value
	}
	return overrides, nil
}

// loadProviderConfig читает YAML-файл конфигурации бэкенда:
// плоское отображение ключ → значение.
func loadProviderConfig(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider config: %w", err)
	}
	var config map[string]string
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse provider config: %w", err)
	}
	return config, nil
}

// printSummary выводит сводку батча и счётчики.
func printSummary(out *Output, summary *coordinator.Summary) {
	headers := []string{"PLAN", "STATUS", "EXIT", "ACTIVITY"}
	rows := make([][]string, 0, len(summary.Outcomes))
	for _, outcome := range summary.Outcomes {
		status := string(outcome.Result.Status)
		if summary.DryRun {
			status = "planned"
		}
		activityID := ""
		if outcome.Activity != nil {
			activityID = outcome.Activity.ID.String()
		}
		rows = append(rows, []string{
			outcome.Unit.Plan.Name,
			status,
			strconv.Itoa(outcome.Result.ExitCode),
			activityID,
		})
	}
	out.Print(headers, rows, summary)

	if summary.DryRun {
		out.Success(fmt.Sprintf("Dry run: %d units planned.", len(summary.Outcomes)))
		return
	}
	out.Success(fmt.Sprintf("%d executed, %d failed, %d skipped.",
		summary.Executed, summary.Failed, summary.Skipped))
}

// shortHash сокращает checksum для табличного вывода.
func shortHash(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	if checksum == "" {
		return "-"
	}
	return checksum
}
