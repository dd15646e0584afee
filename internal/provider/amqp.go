package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Значения по умолчанию amqp-бэкенда.
const (
	defaultUnitsQueue    = "lineage.units"
	defaultResultTimeout = 30 * time.Minute
)

// unitsBatch — сообщение с батчем для удалённых воркеров.
type unitsBatch struct {
	// Units — упорядоченные юниты с зависимостями.
	Units []ExecUnit `json:"units"`

	// BaseDir — базовая директория проекта на стороне воркера.
	BaseDir string `json:"base_dir"`
}

// AMQP — бэкенд, публикующий батч в очередь RabbitMQ и ожидающий
// результаты от удалённого воркера.
//
// Контракт юнитов тот же, что у локального бэкенда: воркер обязан
// соблюдать порядок и DependsOn и вернуть ровно по результату на
// юнит одним ответным сообщением (все-или-ничего на батч, чтобы
// вызывающий мог консистентно зафиксировать новые activities).
type AMQP struct {
	logger *slog.Logger
}

// NewAMQP создаёт amqp-бэкенд.
func NewAMQP() *AMQP {
	return &AMQP{logger: slog.Default()}
}

// Name возвращает "amqp".
func (a *AMQP) Name() string {
	return "amqp"
}

// Execute публикует батч и блокируется до получения результатов
// либо таймаута.
//
// Конфигурация: url (или переменная LINEAGE_AMQP_URL), queue,
// timeout (duration, default 30m).
func (a *AMQP) Execute(ctx context.Context, units []ExecUnit, baseDir string, config map[string]string) ([]UnitResult, error) {
	url := config["url"]
	if url == "" {
		url = os.Getenv("LINEAGE_AMQP_URL")
	}
	if url == "" {
		return nil, ErrNoBrokerURL
	}

	queue := config["queue"]
	if queue == "" {
		queue = defaultUnitsQueue
	}

	timeout := defaultResultTimeout
	if raw := config["timeout"]; raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parse timeout %q: %w", raw, err)
		}
		timeout = parsed
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	// эксклюзивная auto-delete очередь для ответа
	replyQueue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	deliveries, err := ch.Consume(replyQueue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	body, err := json.Marshal(unitsBatch{Units: units, BaseDir: baseDir})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	correlationID := uuid.NewString()
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: correlationID,
		ReplyTo:       replyQueue.Name,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return nil, fmt.Errorf("publish batch: %w", err)
	}

	a.logger.Info("batch published to broker",
		"queue", queue,
		"units", len(units),
		"correlation_id", correlationID,
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrResultTimeout, timeout)
		case delivery, ok := <-deliveries:
			if !ok {
				return nil, fmt.Errorf("reply channel closed: %w", ErrResultTimeout)
			}
			if delivery.CorrelationId != correlationID {
				continue // чужой ответ
			}

			var results []UnitResult
			if err := json.Unmarshal(delivery.Body, &results); err != nil {
				return nil, fmt.Errorf("unmarshal results: %w", err)
			}
			if len(results) != len(units) {
				return nil, fmt.Errorf("worker returned %d results for %d units", len(results), len(units))
			}
			return results, nil
		}
	}
}
