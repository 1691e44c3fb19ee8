package handler

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/bookden/library-service/library/internal/model"
	"github.com/bookden/library-service/pkg/breaker"
	"github.com/bookden/library-service/pkg/kafka"
)

type Enqueuer interface {
	Enqueue(event model.BorrowEvent) error
}

// NewEnqueuer publishes borrow events through a circuit breaker so a dead
// broker is backed off instead of hammered on every request.
func NewEnqueuer(producer sarama.SyncProducer) Enqueuer {
	return &enqueuerImpl{
		producer: producer,
		cb:       breaker.New(20, 30*time.Second, 0.5, 3),
	}
}

type enqueuerImpl struct {
	producer sarama.SyncProducer
	cb       breaker.CircuitBreaker
}

func (q *enqueuerImpl) Enqueue(event model.BorrowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.cb.Call(func() error {
		msg := &sarama.ProducerMessage{Topic: kafka.BorrowTopic, Value: sarama.StringEncoder(data)}
		_, _, err := q.producer.SendMessage(msg)
		return err
	})
}
