package messaging

import "sync"

// MockMessageSender collects messages in memory for tests.
type MockMessageSender struct {
	mu       sync.Mutex
	messages []*DoneMessage
	// Err, when set, is returned by SendDoneMessage
	Err error
}

// NewMockMessageSender creates an empty mock sender
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendDoneMessage records the message
func (m *MockMessageSender) SendDoneMessage(done *DoneMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, done)
	return nil
}

// Messages returns a snapshot of everything sent so far
func (m *MockMessageSender) Messages() []*DoneMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*DoneMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
