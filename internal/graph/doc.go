// Package graph строит граф зависимостей между записанными
// выполнениями (Activities).
//
// Включает:
//   - dag.go       — структура DAG и топологическая сортировка (Кан)
//   - builder.go   — построение DAG из Activities: ребро соединяет
//     activity, породившую путь P, с каждой более поздней activity,
//     потребившей P, если между ними P не перегенерирован
//   - plangraph.go — проверка ацикличности графа ссылок
//     Plan/CompositePlan на момент создания или редактирования
//
// Граф activities ацикличен по построению (каждая activity
// ссылается только на предшествующее состояние), поэтому циклы
// отлавливаются исключительно на уровне планов, до появления
// каких-либо записей.
package graph
