package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vselutin/lineage/internal/domain"
)

// stderrTailLimit — сколько байт stderr сохраняется в результате.
const stderrTailLimit = 4096

// Local — встроенный синхронный бэкенд: юниты выполняются
// подпроцессами по одному, в переданном порядке.
type Local struct {
	logger *slog.Logger
}

// NewLocal создаёт локальный бэкенд.
func NewLocal() *Local {
	return &Local{logger: slog.Default()}
}

// Name возвращает "local".
func (l *Local) Name() string {
	return "local"
}

// Execute выполняет юниты последовательно. Юнит, чья зависимость
// не успешна, пропускается; падение одного юнита не прерывает
// независимые ветки батча.
func (l *Local) Execute(ctx context.Context, units []ExecUnit, baseDir string, config map[string]string) ([]UnitResult, error) {
	shell := config["shell"]
	if shell == "" {
		shell = "/bin/sh"
	}

	results := make([]UnitResult, 0, len(units))
	for i, unit := range units {
		if skipped := skipIfUpstreamFailed(unit, results); skipped != nil {
			l.logger.Info("unit skipped", "unit", i, "plan", unit.Plan.Name, "reason", skipped.Error)
			results = append(results, *skipped)
			continue
		}
		results = append(results, l.executeOne(ctx, i, unit, baseDir, shell))
	}
	return results, nil
}

func (l *Local) executeOne(ctx context.Context, index int, unit ExecUnit, baseDir, shell string) UnitResult {
	result := UnitResult{StartedAt: time.Now()}

	command, err := RenderCommand(unit)
	if err != nil {
		result.Status = UnitFailed
		result.Error = err.Error()
		result.EndedAt = time.Now()
		return result
	}

	workDir := filepath.Join(baseDir, unit.WorkDir)
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), paramEnv(unit)...)

	var stderrTail bytes.Buffer
	cmd.Stderr = &stderrTail

	cleanup, err := l.wireStreams(cmd, unit, workDir)
	if err != nil {
		result.Status = UnitFailed
		result.Error = err.Error()
		result.EndedAt = time.Now()
		return result
	}
	defer cleanup()

	l.logger.Debug("executing unit", "unit", index, "plan", unit.Plan.Name, "command", command)

	runErr := cmd.Run()
	result.EndedAt = time.Now()
	result.ExitCode = exitCode(cmd, runErr)

	if runErr != nil && result.ExitCode == 0 {
		// команда не запустилась вовсе (нет бинаря, нет прав)
		result.Status = UnitFailed
		result.Error = runErr.Error()
		return result
	}

	if !unit.Plan.IsSuccessCode(result.ExitCode) {
		execErr := &ExecutionError{
			UnitIndex: index,
			PlanID:    unit.Plan.ID,
			PlanName:  unit.Plan.Name,
			ExitCode:  result.ExitCode,
			Stderr:    tail(stderrTail.String(), stderrTailLimit),
		}
		result.Status = UnitFailed
		result.Error = execErr.Error()
		return result
	}

	result.Status = UnitSucceeded
	result.GeneratedPaths = outputPaths(unit)
	return result
}

// wireStreams настраивает перенаправления stdin/stdout/stderr по
// stream-параметрам юнита и создаёт директории для output'ов
// с create_folder.
func (l *Local) wireStreams(cmd *exec.Cmd, unit ExecUnit, workDir string) (func(), error) {
	files := make([]*os.File, 0, 3)
	cleanup := func() {
		for _, f := range files {
			f.Close()
		}
	}

	for _, param := range unit.Plan.Parameters {
		value := paramValue(unit, param)

		if param.Kind == domain.KindOutput && param.CreateFolder && value != "" {
			if err := os.MkdirAll(filepath.Join(workDir, filepath.Dir(value)), 0o755); err != nil {
				cleanup()
				return nil, fmt.Errorf("create folder for %s: %w", param.Name, err)
			}
		}

		if param.Stream == domain.StreamNone || value == "" {
			continue
		}
		switch param.Stream {
		case domain.StreamStdin:
			f, err := os.Open(filepath.Join(workDir, value))
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("open stdin %s: %w", value, err)
			}
			files = append(files, f)
			cmd.Stdin = f
		case domain.StreamStdout:
			f, err := os.Create(filepath.Join(workDir, value))
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("create stdout %s: %w", value, err)
			}
			files = append(files, f)
			cmd.Stdout = f
		case domain.StreamStderr:
			f, err := os.Create(filepath.Join(workDir, value))
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("create stderr %s: %w", value, err)
			}
			files = append(files, f)
			cmd.Stderr = f
		}
	}
	return cleanup, nil
}

// RenderCommand собирает командную строку юнита: шаблон команды
// плюс параметры в порядке позиций, с учётом префиксов.
// Stream-параметры в argv не попадают.
func RenderCommand(unit ExecUnit) (string, error) {
	params := make([]domain.CommandParameter, 0, len(unit.Plan.Parameters))
	for _, p := range unit.Plan.Parameters {
		if p.Position > 0 && p.Stream == domain.StreamNone {
			params = append(params, p)
		}
	}
	sort.SliceStable(params, func(i, j int) bool { return params[i].Position < params[j].Position })

	parts := []string{unit.Plan.Command}
	for _, p := range params {
		value := paramValue(unit, p)
		if value == "" {
			if p.Kind == domain.KindArgument {
				continue // необязательный аргумент без значения
			}
			return "", fmt.Errorf("plan %q: parameter %q has no value", unit.Plan.Name, p.Name)
		}

		switch {
		case p.Prefix == "":
			parts = append(parts, shellQuote(value))
		case strings.HasSuffix(p.Prefix, " "):
			parts = append(parts, strings.TrimRight(p.Prefix, " "), shellQuote(value))
		default:
			// слитный префикс вида --input=
			parts = append(parts, p.Prefix+shellQuote(value))
		}
	}
	return strings.Join(parts, " "), nil
}

// paramValue возвращает значение параметра юнита: override из
// Values или default плана.
func paramValue(unit ExecUnit, param domain.CommandParameter) string {
	if v, ok := unit.Values[param.Name]; ok {
		return v
	}
	return param.Default
}

// outputPaths возвращает пути output-параметров юнита
// относительно его рабочей директории.
func outputPaths(unit ExecUnit) []string {
	paths := make([]string, 0)
	for _, p := range unit.Plan.Outputs() {
		value := paramValue(unit, p)
		if value == "" {
			continue
		}
		paths = append(paths, filepath.Join(unit.WorkDir, value))
	}
	return paths
}

func exitCode(cmd *exec.Cmd, runErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

// shellQuote оборачивает значение в одинарные кавычки, если оно
// содержит символы, значимые для шелла.
func shellQuote(value string) string {
	if !strings.ContainsAny(value, " \t\n'\"$&|;<>()*?#~`\\") {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// tail возвращает последние limit байт строки.
func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
