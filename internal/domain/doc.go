// Package domain содержит доменные модели Lineage.
//
// Основные сущности:
//   - Entity    — файл с фиксированным содержимым в определённый момент истории
//   - Plan      — переиспользуемый шаблон выполнения команды
//   - CompositePlan — именованная группа планов с маппингами параметров
//   - Activity  — неизменяемая запись одного прошедшего выполнения
//
// Все модели — value objects: после создания не мутируются.
// Изменение плана порождает новую версию, старая помечается
// как инвалидированная (provenance остаётся разрешимым).
package domain
