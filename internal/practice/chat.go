package practice

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/ashureev/designdrill/internal/domain"
	"github.com/ashureev/designdrill/internal/stream"
	"github.com/ashureev/designdrill/internal/surface"
	"github.com/google/uuid"
)

// ChatApology replaces or follows the AI reply when the stream fails.
const ChatApology = "Sorry, I encountered an error. Please try again."

// OnChatUpdate registers fn to receive a copy of each message as it is added
// or grows. fn runs on the goroutine calling Chat.
func (c *Controller) OnChatUpdate(fn func(domain.ChatMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChat = fn
}

// Transcript returns a copy of the chat messages in order.
func (c *Controller) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ChatMessage, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Typing reports whether an AI reply is streaming.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Chat sends text with the current diagram and streams the reply into the
// transcript. The user message is kept even if the reply fails; a failed
// reply ends with ChatApology and the error is returned.
func (c *Controller) Chat(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	id, err := c.activeID()
	if err != nil {
		return err
	}

	now := c.opts.Now()
	user := domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleUser, Content: text, Timestamp: now}
	reply := domain.ChatMessage{ID: uuid.NewString(), Role: domain.RoleAI, Timestamp: now}

	c.mu.Lock()
	if c.typing {
		c.mu.Unlock()
		return ErrBusy
	}
	c.transcript = append(c.transcript, user, reply)
	idx := len(c.transcript) - 1
	c.typing = true
	notify := c.onChat
	c.mu.Unlock()

	if notify != nil {
		notify(user)
		notify(reply)
	}

	err = c.streamReply(ctx, id, text, idx)

	c.mu.Lock()
	if err != nil {
		m := &c.transcript[idx]
		if m.Content == "" {
			m.Content = ChatApology
		} else {
			m.Content += "\n\n" + ChatApology
		}
		reply = *m
	}
	c.typing = false
	notify = c.onChat
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Chat stream failed", "session_id", id, "error", err)
		if notify != nil {
			notify(reply)
		}
		return err
	}
	return nil
}

func (c *Controller) streamReply(ctx context.Context, sessionID, text string, idx int) error {
	body, err := c.api.OpenChat(ctx, sessionID, text, surface.Snapshot(c.surface))
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	dec := stream.NewDecoder(body)
	for {
		chunk, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.transcript[idx].Content += chunk
		msg := c.transcript[idx]
		notify := c.onChat
		c.mu.Unlock()

		if notify != nil {
			notify(msg)
		}
	}
}

func storedRole(role string) domain.ChatRole {
	switch role {
	case "assistant", "ai", "bot":
		return domain.RoleAI
	}
	return domain.RoleUser
}
