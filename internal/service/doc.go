// Package service — HTTP-поверхность проекта: статус, пересчёт и
// инспекция планов/выполнений для дашбордов и автоматизации.
//
// Читающие запросы выполняются без блокировки проекта; /v1/update
// берёт ту же межпроцессную блокировку, что и CLI.
package service
