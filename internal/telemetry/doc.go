// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// CLI и сервис используют единый формат логирования;
// сервис экспортирует метрики на /metrics endpoint.
package telemetry
