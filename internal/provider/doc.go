// Package provider определяет подключаемые бэкенды выполнения.
//
// Provider получает упорядоченный список юнитов (план +
// разрешённые значения параметров + зависимости внутри батча)
// и возвращает по результату на юнит. Бэкенды регистрируются
// в Registry под уникальным именем и выбираются на границе
// координатора — lookup-таблица, без рефлексии.
//
// Встроенные бэкенды:
//   - local — синхронное последовательное выполнение подпроцессов
//   - amqp  — публикация батча в очередь RabbitMQ и ожидание
//     результатов от удалённых воркеров
package provider
