// Package status вычисляет устаревшие выходы проекта.
//
// Вход — множество изменённых путей (разница с последним
// записанным состоянием) и/или планы с изменившимися
// определениями. Выход — разбиение на четыре категории:
// stale outputs, modified inputs, deleted outputs, up-to-date.
//
// Распространение идёт вперёд по DAG за один проход в
// топологическом порядке; повторный вызов без изменений между
// вызовами даёт пустое множество stale (идемпотентность).
package status
