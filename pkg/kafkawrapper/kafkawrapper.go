// Package kafkawrapper publishes messages to Kafka and runs consumer
// groups draining a topic in batches.
package kafkawrapper

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
	Raw       kafka.Message
}

type ProducerConfig struct {
	Brokers      []string
	Balancer     kafka.Balancer
	BatchSize    int
	BatchBytes   int64
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
}

type Producer struct {
	w *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = 1 << 20
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	wr := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               cfg.Balancer,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
		RequiredAcks:           cfg.RequiredAcks,
		Async:                  true,
	}
	return &Producer{w: wr}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte) error {
	if p == nil || p.w == nil {
		return errors.New("producer not initialized")
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

func (p *Producer) PublishJSON(ctx context.Context, topic string, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, []byte(key), b)
}

func (p *Producer) Close(ctx context.Context) error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}

type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topic      string
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration

	// Batch options
	BatchSize    int
	BatchTimeout time.Duration
}

type ConsumerGroup struct {
	r   *kafka.Reader
	cfg ConsumerConfig
}

func NewConsumerGroup(cfg ConsumerConfig) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 || cfg.GroupID == "" || cfg.Topic == "" {
		return nil, errors.New("brokers, group id and topic are required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffMin == 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // explicit commits
	})

	return &ConsumerGroup{r: r, cfg: cfg}, nil
}

// Run fetches messages, gathers them into batches and hands each
// batch to the handler. A batch is committed only after the handler
// succeeds; failures are retried with capped backoff.
func (cg *ConsumerGroup) Run(ctx context.Context, handler func(ctx context.Context, batch []Message) error) error {
	batch := make([]Message, 0, cg.cfg.BatchSize)
	raw := make([]kafka.Message, 0, cg.cfg.BatchSize)
	deadline := time.Now().Add(cg.cfg.BatchTimeout)

	for {
		fetchCtx, cancel := context.WithDeadline(ctx, deadline)
		m, err := cg.r.FetchMessage(fetchCtx)
		cancel()

		switch {
		case err == nil:
			batch = append(batch, Message{
				Topic:     m.Topic,
				Partition: m.Partition,
				Offset:    m.Offset,
				Key:       m.Key,
				Value:     m.Value,
				Time:      m.Time,
				Raw:       m,
			})
			raw = append(raw, m)
		case errors.Is(err, context.DeadlineExceeded):
			// batch window elapsed
		case errors.Is(err, context.Canceled):
			return cg.r.Close()
		default:
			return err
		}

		if len(batch) >= cg.cfg.BatchSize || (time.Now().After(deadline) && len(batch) > 0) {
			if err := cg.deliver(ctx, handler, batch); err != nil {
				return err
			}
			if err := cg.r.CommitMessages(ctx, raw...); err != nil {
				return err
			}
			batch = batch[:0]
			raw = raw[:0]
		}
		if time.Now().After(deadline) {
			deadline = time.Now().Add(cg.cfg.BatchTimeout)
		}
	}
}

func (cg *ConsumerGroup) deliver(ctx context.Context, handler func(ctx context.Context, batch []Message) error, batch []Message) error {
	backoff := cg.cfg.BackoffMin
	var err error
	for attempt := 0; attempt <= cg.cfg.MaxRetries; attempt++ {
		if err = handler(ctx, batch); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cg.cfg.BackoffMax {
			backoff = cg.cfg.BackoffMax
		}
	}
	return err
}

func (cg *ConsumerGroup) Close() error {
	return cg.r.Close()
}
