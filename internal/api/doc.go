// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (хранилища, runner, очередь, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery, CORS)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - workflow_handler.go   — обработчики для /workflows
//   - execution_handler.go  — выполнение, история и ad hoc run
//
// Ошибки структуры графа (цикл, висячее ребро, неизвестный узел)
// возвращаются как 422 INVALID_GRAPH.
package api
