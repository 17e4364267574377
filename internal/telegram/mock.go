package telegram

import (
	"context"
	"sync"
)

// SentMessage records one outbound call made against the MockClient.
type SentMessage struct {
	ChatID  string
	Text    string
	Choices []string // nil for plain messages
}

// MockClient implements Sender for tests, recording every send.
type MockClient struct {
	mu   sync.Mutex
	sent []SentMessage

	// SendErr, when set, is returned by every send call.
	SendErr error
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SendMessage implements Sender.
func (m *MockClient) SendMessage(ctx context.Context, chatID, text string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text})
	return nil
}

// SendKeyboard implements Sender.
func (m *MockClient) SendKeyboard(ctx context.Context, chatID, text string, choices []string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text, Choices: append([]string(nil), choices...)})
	return nil
}

// Sent returns a copy of all recorded sends in order.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Reset clears the recorded sends.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
