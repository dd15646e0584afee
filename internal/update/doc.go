// Package update пересчитывает устаревшие выходы и воспроизводит
// исторические цепочки выполнений.
//
// Два родственных, но разных алгоритма:
//   - Update — пересчитать ровно устаревший подграф, найденный
//     движком статуса, с текущими default'ами планов; план, общий
//     для нескольких устаревших веток, выполняется один раз
//   - Rerun  — воспроизвести историческую цепочку конкретной
//     activity с записанными значениями параметров, без консультации
//     со статусом
//
// Оба выполняются в топологическом порядке через координатор
// и поддерживают dry-run и skip-metadata.
package update
