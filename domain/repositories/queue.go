package repositories

import (
	"context"
	"time"
)

// TranscriptionJob is the queue message payload for background audio
// processing. RetryCount is carried in the payload so a re-enqueued job keeps
// its history across queue messages.
type TranscriptionJob struct {
	JobType    string    `json:"job_type"`
	PatientID  string    `json:"patient_id"`
	VisitID    string    `json:"visit_id"`
	AudioRef   string    `json:"audio_ref"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"created_at"`
	RetryCount int       `json:"retry_count"`
	RequestID  string    `json:"request_id,omitempty"`
}

// QueuedMessage is a dequeued job plus the handles needed to extend its
// invisibility window or delete it.
type QueuedMessage struct {
	Job        TranscriptionJob
	MessageID  string
	PopReceipt string
}

// JobQueue abstracts a cloud queue with visibility timeouts. Dequeue returns
// (nil, nil) when the queue is empty. ExtendVisibility returns a fresh pop
// receipt which supersedes the previous one.
type JobQueue interface {
	Enqueue(ctx context.Context, job TranscriptionJob, delaySeconds int) (string, error)
	Dequeue(ctx context.Context) (*QueuedMessage, error)
	ExtendVisibility(ctx context.Context, messageID, popReceipt string, seconds int) (string, error)
	Delete(ctx context.Context, messageID, popReceipt string) error
}
