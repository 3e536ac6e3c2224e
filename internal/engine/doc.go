// Package engine содержит ядро выполнения workflow, не зависящее от
// внешних сервисов.
//
// Включает:
//   - validate.go — структурная валидация графа
//   - dag.go      — построение DAG и порядок выполнения (алгоритм Кана)
//   - subset.go   — выделение подграфа для частичного выполнения
//   - binder.go   — сбор входов узла по портам
//   - template.go — рендеринг шаблонов промпта ({{ .Inputs.input }})
//   - errors.go   — таксономия ошибок графа и узлов
//
// Выполнением узлов занимается пакет runner.
package engine
