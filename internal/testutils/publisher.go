package testutils

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockPublisher implements the broker publish contract for tests.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

// Published is one captured publish.
type Published struct {
	Topic   string
	Payload []byte
}

// RecordingPublisher keeps every publish in memory.
type RecordingPublisher struct {
	mu   sync.Mutex
	msgs []Published
	Err  error
}

func (p *RecordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.msgs = append(p.msgs, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns a copy of the captured publishes.
func (p *RecordingPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.msgs...)
}
