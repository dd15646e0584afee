// Package resolve разрешает параметры composite-планов.
//
// Включает:
//   - flatten.go   — разворачивание вложенных групп в список
//     листовых параметров с dotted-путями
//   - overrides.go — применение override'ов с приоритетом
//     специфичности: child-path всегда побеждает групповой маппинг
//   - iterate.go   — декартово произведение пространств значений
//     для workflow iterate, с подстановкой {iter_index}
//
// Ошибки разрешения означают ошибку определения со стороны
// пользователя и прерывают операцию целиком.
package resolve
