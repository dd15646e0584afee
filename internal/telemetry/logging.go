package telemetry

import (
	"log/slog"
	"os"
)

// LogLevel определяет уровень логирования из переменной окружения.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func LogLevel() slog.Level {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода определяется переменной LOG_FORMAT:
//   - "json" — JSON формат для сервисного режима
//   - "text" (по умолчанию) — человекочитаемый формат для CLI
//
// Логи пишутся на stderr: stdout занят выводом команд.
func SetupLogger() *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	format := os.Getenv("LOG_FORMAT")
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// WithPlan возвращает логгер с добавленным plan.
func WithPlan(logger *slog.Logger, plan string) *slog.Logger {
	return logger.With("plan", plan)
}

// WithActivityID возвращает логгер с добавленным activity_id.
func WithActivityID(logger *slog.Logger, activityID string) *slog.Logger {
	return logger.With("activity_id", activityID)
}

// WithProject возвращает логгер с добавленным корнем проекта.
func WithProject(logger *slog.Logger, root string) *slog.Logger {
	return logger.With("project", root)
}
