// Package kafkadispatch implements secondary.ClearingAdapter and
// secondary.MessageSender over Kafka, for clearing systems and queued
// messages whose endpoint URL names a "host:port/topic" Kafka target.
// Adapted from the teacher's kafkaproducer.DestinationProducer (writers
// cached per broker address, created on demand).
package kafkadispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ruudy-sib/corepay/core/domain"
	"github.com/ruudy-sib/corepay/core/port/secondary"
)

// Producer dispatches payloads to Kafka, caching one *kafka.Writer per
// broker address across calls.
type Producer struct {
	writers map[string]*kafka.Writer
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewProducer builds a kafkadispatch.Producer.
func NewProducer(logger *zap.Logger) *Producer {
	return &Producer{writers: make(map[string]*kafka.Writer), logger: logger.Named("kafka-dispatch")}
}

// parseTarget splits a "host:port/topic" URL into a broker address and topic.
func parseTarget(url string) (addr, topic string, err error) {
	idx := strings.LastIndex(url, "/")
	if idx <= 0 || idx == len(url)-1 {
		return "", "", fmt.Errorf("kafka target %q must be host:port/topic", url)
	}
	return url[:idx], url[idx+1:], nil
}

func (p *Producer) writerFor(addr string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[addr]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(addr),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	p.writers[addr] = w
	p.logger.Info("kafka writer created", zap.String("broker", addr))
	return w
}

func (p *Producer) write(ctx context.Context, url string, key, value []byte) error {
	addr, topic, err := parseTarget(url)
	if err != nil {
		return err
	}
	writer := p.writerFor(addr)
	if err := writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value}); err != nil {
		return fmt.Errorf("writing message to kafka topic %q at %q: %w", topic, addr, err)
	}
	p.logger.Debug("message produced", zap.String("broker", addr), zap.String("topic", topic), zap.Int("value_size", len(value)))
	return nil
}

// Dispatch implements secondary.ClearingAdapter for a Kafka-backed clearing
// endpoint (spec §4.5/§4.6 other-bank dispatch with ASYNC processing mode).
// Kafka has no inline ack, so a successful write reports ACK_PENDING: the
// real acknowledgement arrives later via the clearing-webhook intake.
func (p *Producer) Dispatch(ctx context.Context, endpoint domain.Endpoint, payload []byte, headers map[string]string) (secondary.ClearingStatus, error) {
	key := []byte(endpoint.ClearingSystemCode)
	if err := p.write(ctx, endpoint.URL, key, payload); err != nil {
		return secondary.ClearingStatus{}, err
	}
	return secondary.ClearingStatus{Result: secondary.ClearingAckPending}, nil
}

// Send implements secondary.MessageSender for queued messages whose
// original call targeted a Kafka address (spec §4.8).
func (p *Producer) Send(ctx context.Context, msg domain.QueuedMessage) error {
	return p.write(ctx, msg.URL, []byte(msg.CorrelationID), msg.Payload)
}

// Close shuts down every cached writer.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for addr, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing writer for %s: %w", addr, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing kafka writers: %v", errs)
	}
	return nil
}
