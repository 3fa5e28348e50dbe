package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// Recorder is an in-memory Publisher for asserting on emitted events.
type Recorder struct {
	mu       sync.Mutex
	Messages []kafka.Message
}

func (r *Recorder) Publish(key, value []byte, headers ...kafka.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, kafka.Message{Key: key, Value: value, Headers: headers})
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Messages)
}
