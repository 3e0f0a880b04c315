// Package redisnotify fans notifications out over Redis pub/sub and per-recipient inbox lists.
package redisnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/nexus/internal/domain"
	"github.com/redis/go-redis/v9"
)

// defaultChannel is the pub/sub channel used when Config.Channel is empty.
const defaultChannel = "nexus:notifications"

// defaultInboxLimit bounds each recipient inbox list.
const defaultInboxLimit = 100

// Config holds configuration for the publisher.
type Config struct {
	Channel    string
	InboxLimit int
}

// Publisher implements app.Notifier over Redis.
type Publisher struct {
	redis      *redis.Client
	channel    string
	inboxLimit int64
}

// Message is the JSON payload published for every notification.
type Message struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TaskID      string    `json:"task_id"`
	RecipientID string    `json:"recipient_id"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPublisher constructs a Redis-backed notifier.
func NewPublisher(client *redis.Client, cfg Config) *Publisher {
	if client == nil {
		panic("redisnotify.NewPublisher: redis client is nil")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = defaultChannel
	}
	limit := cfg.InboxLimit
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	return &Publisher{
		redis:      client,
		channel:    channel,
		inboxLimit: int64(limit),
	}
}

// Channel returns the pub/sub channel notifications are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// Notify publishes each notification and pushes it onto the recipient inbox in one MULTI block.
func (p *Publisher) Notify(ctx context.Context, batch []domain.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	payloads := make([][]byte, 0, len(batch))
	for _, n := range batch {
		data, err := json.Marshal(toMessage(n))
		if err != nil {
			return fmt.Errorf("encode notification %q: %w", n.ID, err)
		}
		payloads = append(payloads, data)
	}
	_, err := p.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, n := range batch {
			key := InboxKey(n.RecipientID)
			pipe.Publish(ctx, p.channel, payloads[i])
			pipe.LPush(ctx, key, payloads[i])
			pipe.LTrim(ctx, key, 0, p.inboxLimit-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish notifications: %w", err)
	}
	return nil
}

// Inbox reads up to limit recent notifications for one recipient, newest first.
func (p *Publisher) Inbox(ctx context.Context, recipientID string, limit int) ([]Message, error) {
	if limit <= 0 || int64(limit) > p.inboxLimit {
		limit = int(p.inboxLimit)
	}
	raw, err := p.redis.LRange(ctx, InboxKey(recipientID), 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode inbox entry: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// InboxKey returns the list key holding one recipient's notifications.
func InboxKey(recipientID string) string {
	return "nexus:inbox:" + recipientID
}

func toMessage(n domain.Notification) Message {
	return Message{
		ID:          n.ID,
		ProjectID:   n.ProjectID,
		TaskID:      n.TaskID,
		RecipientID: n.RecipientID,
		Kind:        string(n.Kind),
		Message:     n.Message,
		CreatedAt:   n.CreatedAt.UTC(),
	}
}
