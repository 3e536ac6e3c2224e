// Package runner выполняет граф workflow.
//
// Runner упорядочивает узлы через engine.BuildDAG, последовательно
// выполняет каждый узел executor'ом его типа и собирает RunResult.
// Ошибка узла не прерывает run: узел получает статус failed, его
// результат не попадает во входы зависимых узлов, и те падают
// с MissingInputError.
//
// Внешние сервисы (модель, обрезка, извлечение кадра) передаются
// через интерфейсы Inferencer, Cropper и FrameExtractor.
package runner
