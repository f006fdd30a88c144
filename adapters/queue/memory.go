package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicai/server/domain/repositories"
)

type memoryMessage struct {
	job        repositories.TranscriptionJob
	messageID  string
	popReceipt string
	visibleAt  time.Time
	leased     bool
}

// MemoryQueue is an in-process JobQueue with the same visibility semantics as
// RedisQueue. Used in tests and single-binary local runs.
type MemoryQueue struct {
	mu                sync.Mutex
	messages          []*memoryMessage
	visibilitySeconds int
	now               func() time.Time
}

// NewMemoryQueue creates an in-memory queue.
func NewMemoryQueue(visibilitySeconds int) *MemoryQueue {
	if visibilitySeconds <= 0 {
		visibilitySeconds = defaultVisibilitySeconds
	}
	return &MemoryQueue{
		visibilitySeconds: visibilitySeconds,
		now:               time.Now,
	}
}

// SetClock overrides the time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue implements JobQueue.
func (q *MemoryQueue) Enqueue(_ context.Context, job repositories.TranscriptionJob, delaySeconds int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := &memoryMessage{
		job:       job,
		messageID: uuid.New().String(),
		visibleAt: q.now().Add(time.Duration(delaySeconds) * time.Second),
	}
	q.messages = append(q.messages, msg)
	return msg.messageID, nil
}

// Dequeue implements JobQueue. Returns (nil, nil) when nothing is visible.
func (q *MemoryQueue) Dequeue(_ context.Context) (*repositories.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, msg := range q.messages {
		if msg.visibleAt.After(now) {
			continue
		}
		msg.leased = true
		msg.popReceipt = uuid.New().String()
		msg.visibleAt = now.Add(time.Duration(q.visibilitySeconds) * time.Second)
		return &repositories.QueuedMessage{
			Job:        msg.job,
			MessageID:  msg.messageID,
			PopReceipt: msg.popReceipt,
		}, nil
	}
	return nil, nil
}

// ExtendVisibility implements JobQueue.
func (q *MemoryQueue) ExtendVisibility(_ context.Context, messageID, popReceipt string, seconds int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, err := q.find(messageID, popReceipt)
	if err != nil {
		return "", err
	}
	msg.popReceipt = uuid.New().String()
	msg.visibleAt = q.now().Add(time.Duration(seconds) * time.Second)
	return msg.popReceipt, nil
}

// Delete implements JobQueue.
func (q *MemoryQueue) Delete(_ context.Context, messageID, popReceipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, msg := range q.messages {
		if msg.messageID == messageID {
			if !msg.leased || msg.popReceipt != popReceipt {
				return fmt.Errorf("stale pop receipt for message %s", messageID)
			}
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("message %s not found", messageID)
}

// Len reports how many messages remain, visible or leased.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func (q *MemoryQueue) find(messageID, popReceipt string) (*memoryMessage, error) {
	for _, msg := range q.messages {
		if msg.messageID == messageID {
			if !msg.leased || msg.popReceipt != popReceipt {
				return nil, fmt.Errorf("stale pop receipt for message %s", messageID)
			}
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %s not found", messageID)
}
