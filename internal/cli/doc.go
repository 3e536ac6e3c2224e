// Package cli реализует инструмент командной строки Weave.
//
// # Обзор
//
// Команды делятся на две группы:
//   - workflow, execution — работают с Weave API по HTTP и не импортируют
//     internal/api
//   - run, watch — выполняют графы в процессе CLI и слушают события
//     RabbitMQ напрямую
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Weave API. Инкапсулирует HTTP-запросы, разбор
// ответов (DataResponse, ListResponse, ErrorResponse) и ошибки (*APIError).
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения и логи — в stderr.
// Это позволяет использовать pipe: weave workflow list --json | jq .
//
// ## Commands
//
//   - workflow: list, create, show, update, delete, execute, history
//   - execution: show
//   - run: локальное выполнение файлов графов (errgroup, --parallel)
//   - watch: поток node.status и execution.completed
//
// Группы API-команд создаются фабричными функциями, принимающими
// clientFn и outputFn — замыкания для ленивого создания Client и Output
// после парсинга PersistentFlags.
package cli
