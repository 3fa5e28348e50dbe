package kafka

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher is what the checkout and reconciliation paths need from a
// producer; tests substitute a recorder.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log.With("topic", topic),
	}
}

// Start runs the write loop until ctx is cancelled or Close is called; both
// paths flush whatever is still buffered.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() { _ = p.w.Close() }()
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m, ok := <-p.inbox:
						if !ok {
							return
						}
						p.write(m)
					default:
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("kafka write failed", "key", string(m.Key), "err", err)
	}
}

// Publish never blocks the caller. A message that arrives after Close or
// finds the inbox full is logged and dropped.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(key, "producer closed")
		return
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
	default:
		p.drop(key, "inbox full")
	}
}

func (p *Producer) drop(key []byte, reason string) {
	p.dropped.Add(1)
	p.log.Error("kafka message dropped", "key", string(key), "reason", reason)
}

// Dropped reports how many messages Publish has discarded.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting messages; the loop drains the inbox and exits.
// Further calls are no-ops.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// WaitClosed blocks until the loop has flushed and closed the writer.
func (p *Producer) WaitClosed() { <-p.closeCh }
