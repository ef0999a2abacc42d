package bot

import (
	"context"
	"sync"
)

// MessageEditor rewrites one chat message in place. It is the status sink a
// pipeline reports its progress lines to.
type MessageEditor struct {
	Client    *Client
	ChatID    int64
	MessageID int64

	mu   sync.Mutex
	last string
}

func NewMessageEditor(c *Client, chatID, messageID int64) *MessageEditor {
	return &MessageEditor{Client: c, ChatID: chatID, MessageID: messageID}
}

func (m *MessageEditor) Update(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if text == m.last {
		return nil
	}
	err := m.Client.EditMessageText(ctx, m.ChatID, m.MessageID, text)
	if err != nil && !IsNotModified(err) {
		return err
	}
	m.last = text
	return nil
}

// Text is the last text written.
func (m *MessageEditor) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
