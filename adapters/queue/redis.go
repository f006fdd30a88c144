package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicai/server/domain/repositories"
)

const defaultVisibilitySeconds = 300

// envelope is the stored form of a queued message. The pop receipt rotates on
// every dequeue and visibility extension; stale receipts are rejected.
type envelope struct {
	Job        repositories.TranscriptionJob `json:"job"`
	PopReceipt string                        `json:"pop_receipt"`
}

// RedisQueue implements JobQueue on Redis with three structures per queue:
// a ready list, a scheduled sorted set (score = ready-at), and a leased
// sorted set (score = visibility deadline). Expired leases are reclaimed on
// the next Dequeue.
type RedisQueue struct {
	client            *redis.Client
	logger            *zap.Logger
	name              string
	visibilitySeconds int
}

// NewRedisQueue creates a queue named name on the given client.
func NewRedisQueue(client *redis.Client, name string, visibilitySeconds int, logger *zap.Logger) *RedisQueue {
	if visibilitySeconds <= 0 {
		visibilitySeconds = defaultVisibilitySeconds
	}
	return &RedisQueue{
		client:            client,
		logger:            logger,
		name:              name,
		visibilitySeconds: visibilitySeconds,
	}
}

func (q *RedisQueue) readyKey() string     { return q.name + ":ready" }
func (q *RedisQueue) scheduledKey() string { return q.name + ":scheduled" }
func (q *RedisQueue) leasedKey() string    { return q.name + ":leased" }
func (q *RedisQueue) messagesKey() string  { return q.name + ":messages" }

// Enqueue stores the job and makes it visible after delaySeconds.
func (q *RedisQueue) Enqueue(ctx context.Context, job repositories.TranscriptionJob, delaySeconds int) (string, error) {
	messageID := uuid.New().String()
	payload, err := json.Marshal(envelope{Job: job})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.messagesKey(), messageID, payload)
	if delaySeconds > 0 {
		readyAt := float64(time.Now().Add(time.Duration(delaySeconds) * time.Second).Unix())
		pipe.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: readyAt, Member: messageID})
	} else {
		pipe.LPush(ctx, q.readyKey(), messageID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	q.logger.Debug("job enqueued",
		zap.String("queue", q.name),
		zap.String("message_id", messageID),
		zap.String("visit_id", job.VisitID),
		zap.Int("delay_seconds", delaySeconds))
	return messageID, nil
}

// Dequeue pops one visible message and leases it for the visibility window.
// Returns (nil, nil) when nothing is ready.
func (q *RedisQueue) Dequeue(ctx context.Context) (*repositories.QueuedMessage, error) {
	if err := q.promoteDue(ctx, q.scheduledKey()); err != nil {
		return nil, err
	}
	if err := q.promoteDue(ctx, q.leasedKey()); err != nil {
		return nil, err
	}

	messageID, err := q.client.RPop(ctx, q.readyKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop message: %w", err)
	}

	payload, err := q.client.HGet(ctx, q.messagesKey(), messageID).Result()
	if err == redis.Nil {
		// Deleted while in flight; nothing to hand out.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("corrupt message %s: %w", messageID, err)
	}

	env.PopReceipt = uuid.New().String()
	if err := q.lease(ctx, messageID, env, q.visibilitySeconds); err != nil {
		return nil, err
	}

	return &repositories.QueuedMessage{
		Job:        env.Job,
		MessageID:  messageID,
		PopReceipt: env.PopReceipt,
	}, nil
}

// ExtendVisibility pushes the lease deadline out and rotates the receipt.
func (q *RedisQueue) ExtendVisibility(ctx context.Context, messageID, popReceipt string, seconds int) (string, error) {
	env, err := q.verifyReceipt(ctx, messageID, popReceipt)
	if err != nil {
		return "", err
	}
	env.PopReceipt = uuid.New().String()
	if err := q.lease(ctx, messageID, *env, seconds); err != nil {
		return "", err
	}
	return env.PopReceipt, nil
}

// Delete removes a leased message permanently.
func (q *RedisQueue) Delete(ctx context.Context, messageID, popReceipt string) error {
	if _, err := q.verifyReceipt(ctx, messageID, popReceipt); err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.leasedKey(), messageID)
	pipe.HDel(ctx, q.messagesKey(), messageID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

func (q *RedisQueue) lease(ctx context.Context, messageID string, env envelope, seconds int) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	deadline := float64(time.Now().Add(time.Duration(seconds) * time.Second).Unix())

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.messagesKey(), messageID, payload)
	pipe.ZAdd(ctx, q.leasedKey(), redis.Z{Score: deadline, Member: messageID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to lease message %s: %w", messageID, err)
	}
	return nil
}

func (q *RedisQueue) verifyReceipt(ctx context.Context, messageID, popReceipt string) (*envelope, error) {
	payload, err := q.client.HGet(ctx, q.messagesKey(), messageID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("corrupt message %s: %w", messageID, err)
	}
	if env.PopReceipt == "" || env.PopReceipt != popReceipt {
		return nil, fmt.Errorf("stale pop receipt for message %s", messageID)
	}
	return &env, nil
}

// promoteDue moves members whose score has passed back onto the ready list.
func (q *RedisQueue) promoteDue(ctx context.Context, key string) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", key, err)
	}
	for _, messageID := range due {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, key, messageID)
		pipe.LPush(ctx, q.readyKey(), messageID)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to promote message %s: %w", messageID, err)
		}
	}
	return nil
}
