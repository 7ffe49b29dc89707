// Package worker подключает воркер к брокеру и обслуживает запросы.
//
// # Обзор
//
// Воркер — долгоживущий процесс, который:
//
//   - Держит одну сессию с брокером и переподключается после разрыва
//   - Получает запросы из upstate/requests и отвечает на ReplyTo
//   - Каждые 10 секунд публикует статус в upstate/worker-status
//
// # Ключевые компоненты
//
// ## Supervisor
//
// Управляющий цикл. Создаётся через NewSupervisor(cfg) и запускается Run(ctx).
// На каждой итерации проверяет текущую сессию: если она жива, ничего не
// делает; иначе закрывает старое поколение (links, таймеры, соединение)
// и подключается заново. Между итерациями ждёт ReconnectInterval (60s),
// без экспоненциального роста и без ограничения числа попыток.
//
//	s := worker.NewSupervisor(worker.SupervisorConfig{
//	    Identity: worker.NewIdentity("worker-go"),
//	    Dial:     worker.AMQPDialer(mqCfg, logger),
//	    Logger:   logger,
//	})
//
//	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// ## RequestChannel
//
// Receiver на upstate/requests + анонимный sender для ответов.
// Запросы обрабатываются строго по одному в порядке поступления.
// Ответ: Address = ReplyTo запроса, CorrelationID = MessageID запроса,
// Body = результат ProcessFunc, Properties = {worker_id}.
// Если обработка упала — запрос отбрасывается, ответа нет.
//
// ## StatusPublisher
//
// Sender на upstate/worker-status и cron-расписание с периодом 10s.
// На каждом тике:
//
//  1. Сессия разорвана → расписание снимается, publisher переходит в CANCELLED
//  2. Очередь sender'а заполнена → тик пропускается
//  3. Иначе публикуется статус {worker_id, timestamp, count}
//
// # Гарантии доставки
//
// At-most-once: входящие сообщения подтверждаются при доставке,
// ответы и статусы не переотправляются.
package worker
