// Package coordinator диспетчеризует упорядоченные юниты работы
// в подключаемый бэкенд и собирает результаты.
//
// Координатор не знает, откуда взялись юниты (update, rerun,
// workflow execute) и кто их покажет пользователю: он выполняет
// батч через выбранный Provider, строит новые Activities по
// фактическим результатам и отдаёт сводку с разбиением
// выполнено / упало / пропущено.
package coordinator
