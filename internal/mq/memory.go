package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memorySubscriberBuffer = 64

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker fans messages out to subscribers inside one process.
// Handler errors are dropped: there is no redelivery.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscriber]struct{}
	closed bool
	done   chan struct{}
}

type memorySubscriber struct {
	messages chan Message
	done     chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*memorySubscriber]struct{}),
		done: make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrBrokerClosed
	}
	targets := make([]*memorySubscriber, 0, len(b.subs[channel]))
	for sub := range b.subs[channel] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: copyAttributes(attrs)}
	for _, sub := range targets {
		select {
		case sub.messages <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return msg.ID, nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}

	sub := &memorySubscriber{
		messages: make(chan Message, memorySubscriberBuffer),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscriber]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs[channel], sub)
		b.mu.Unlock()
		close(sub.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBrokerClosed
		case msg := <-sub.messages:
			_ = handler(ctx, msg)
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

// Subscribers returns the number of active subscriptions on channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func copyAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
