// Package record превращает одно выполнение команды в пару
// Plan + Activity.
//
// Входы определяются по токенам командной строки, существующим как
// пути в рабочем дереве; выходы — по разнице снимков рабочего дерева
// до и после выполнения. Явные аннотации (--input/--output/--param)
// переопределяют автоопределение. Командная строка восстанавливается
// из плана без потерь: ведущие токены образуют Command, остальные —
// позиционные параметры.
package record
