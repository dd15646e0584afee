// Package vcs определяет узкий интерфейс VCS-коллаборатора.
//
// Движок никогда не ходит по сырой истории версий: ему нужны
// только три операции — текущий hash содержимого пути, список
// изменённых путей с момента коммита и фиксация результата.
//
// Реализации:
//   - Worktree — контент-хеширование рабочего дерева (sha256),
//     без истории; ChangedPaths и Commit не поддерживаются.
//   - Git — адаптер поверх установленного git.
package vcs
