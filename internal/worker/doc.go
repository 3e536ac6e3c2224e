// Package worker выполняет executions workflow.
//
// # Обзор
//
// Worker — stateless компонент системы Weave. API создаёт запись
// execution в статусе pending и публикует execution.requested;
// worker забирает execution и выполняет его граф:
//
//   - Получение execution.requested из очереди RabbitMQ (event-driven)
//   - Периодическая проверка pending executions в БД (polling fallback)
//   - Выполнение графа через runner.Runner в scope execution'а
//   - Публикация node.status для каждого перехода статуса узла
//   - Сохранение итога и публикация execution.completed
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Executions: executionRepo,
//	    Workflows:  workflowRepo,
//	    Runner:     r,
//	    Events:     publisher,
//	    Conn:       mqConn,
//	    Logger:     logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка execution
//
//  1. Загрузка execution из БД, проверка статуса pending
//  2. Claim: атомарный перевод pending → running
//  3. Загрузка workflow и снимок его графа
//  4. Execute (scope full) или ExecuteSubset (selected, single)
//  5. Невалидный граф → MarkFailed, иначе Complete с результатами узлов
//  6. Finish и публикация execution.completed
//
// # Ошибки
//
// Execution, который уже забрал другой worker, подтверждается без повтора.
// Нераспознаваемое сообщение уходит в DLQ (mq.ErrPermanent).
// Ошибки БД возвращают сообщение в очередь.
package worker
