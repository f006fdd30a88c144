package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicai/server/domain/repositories"
)

func testJob(visitID string) repositories.TranscriptionJob {
	return repositories.TranscriptionJob{
		JobType:   "transcription",
		PatientID: "p1",
		VisitID:   visitID,
		AudioRef:  "gs://bucket/a.wav",
		Language:  "en-US",
	}
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(300)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testJob("v1"), 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.MessageID)
	assert.Equal(t, "v1", msg.Job.VisitID)
	assert.NotEmpty(t, msg.PopReceipt)
}

func TestMemoryQueueEmptyReturnsNil(t *testing.T) {
	q := NewMemoryQueue(300)
	msg, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestMemoryQueueDelayHidesMessage(t *testing.T) {
	q := NewMemoryQueue(300)
	ctx := context.Background()

	base := time.Now()
	q.SetClock(func() time.Time { return base })

	_, err := q.Enqueue(ctx, testJob("v1"), 60)
	require.NoError(t, err)

	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg)

	q.SetClock(func() time.Time { return base.Add(61 * time.Second) })
	msg, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "v1", msg.Job.VisitID)
}

func TestMemoryQueueLeasedMessageIsInvisible(t *testing.T) {
	q := NewMemoryQueue(300)
	ctx := context.Background()

	base := time.Now()
	q.SetClock(func() time.Time { return base })

	_, err := q.Enqueue(ctx, testJob("v1"), 0)
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, second)

	// After the visibility window expires, the message comes back for another
	// worker with a fresh receipt.
	q.SetClock(func() time.Time { return base.Add(301 * time.Second) })
	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, first.MessageID, third.MessageID)
	assert.NotEqual(t, first.PopReceipt, third.PopReceipt)
}

func TestMemoryQueueExtendVisibilityRotatesReceipt(t *testing.T) {
	q := NewMemoryQueue(300)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testJob("v1"), 0)
	require.NoError(t, err)
	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	fresh, err := q.ExtendVisibility(ctx, msg.MessageID, msg.PopReceipt, 600)
	require.NoError(t, err)
	assert.NotEqual(t, msg.PopReceipt, fresh)

	// The superseded receipt is no longer honored.
	_, err = q.ExtendVisibility(ctx, msg.MessageID, msg.PopReceipt, 600)
	assert.Error(t, err)

	_, err = q.ExtendVisibility(ctx, msg.MessageID, fresh, 600)
	assert.NoError(t, err)
}

func TestMemoryQueueDelete(t *testing.T) {
	q := NewMemoryQueue(300)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testJob("v1"), 0)
	require.NoError(t, err)
	msg, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.Error(t, q.Delete(ctx, msg.MessageID, "bogus-receipt"))
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Delete(ctx, msg.MessageID, msg.PopReceipt))
	assert.Equal(t, 0, q.Len())

	assert.Error(t, q.Delete(ctx, msg.MessageID, msg.PopReceipt))
}
