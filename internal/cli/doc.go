// Package cli реализует команды инструмента lineage.
//
// Команды работают с проектом напрямую: открывают рабочее дерево и
// хранилище метаданных, без промежуточного API. Конструкторы команд
// принимают фабрики проекта и вывода, чтобы flags разбирались до
// подключения к базе.
package cli
