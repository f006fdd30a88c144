package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicai/server/adapters/llm"
	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/usecase"
)

type fakeQueue struct {
	mu       sync.Mutex
	ops      []string // "enqueue", "delete", "extend" in call order
	enqueued []repositories.TranscriptionJob
	delays   []int
	deleted  []string
}

func (q *fakeQueue) Enqueue(_ context.Context, job repositories.TranscriptionJob, delaySeconds int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, "enqueue")
	q.enqueued = append(q.enqueued, job)
	q.delays = append(q.delays, delaySeconds)
	return "msg-retry", nil
}

func (q *fakeQueue) Dequeue(_ context.Context) (*repositories.QueuedMessage, error) {
	return nil, nil
}

func (q *fakeQueue) ExtendVisibility(_ context.Context, _, popReceipt string, _ int) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, "extend")
	return popReceipt, nil
}

func (q *fakeQueue) Delete(_ context.Context, messageID, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, "delete")
	q.deleted = append(q.deleted, messageID)
	return nil
}

type fakeVisits struct {
	mu     sync.Mutex
	visits map[string]*entities.Visit
	saves  int
}

func newFakeVisits(visits ...*entities.Visit) *fakeVisits {
	m := make(map[string]*entities.Visit)
	for _, v := range visits {
		m[v.ID] = v
	}
	return &fakeVisits{visits: m}
}

func (r *fakeVisits) Create(_ context.Context, visit *entities.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[visit.ID] = visit
	return nil
}

func (r *fakeVisits) FindByID(_ context.Context, visitID string) (*entities.Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[visitID]
	if !ok {
		return nil, &entities.VisitNotFoundError{VisitID: visitID}
	}
	return v, nil
}

func (r *fakeVisits) FindByPatientAndVisitID(ctx context.Context, _, visitID string) (*entities.Visit, error) {
	return r.FindByID(ctx, visitID)
}

func (r *fakeVisits) Save(_ context.Context, visit *entities.Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visits[visit.ID] = visit
	r.saves++
	return nil
}

func (r *fakeVisits) TryClaimTranscription(_ context.Context, visitID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.visits[visitID]
	if !ok || v.Transcription == nil || v.Transcription.Status != entities.TranscriptionStatusPending {
		return false, nil
	}
	now := time.Now().UTC()
	v.Transcription.Status = entities.TranscriptionStatusProcessing
	v.Transcription.StartedAt = &now
	return true, nil
}

type fakeTranscriber struct {
	result repositories.TranscriptionResult
	err    error
	calls  int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _, _ string) (repositories.TranscriptionResult, error) {
	f.calls++
	if f.err != nil {
		return repositories.TranscriptionResult{Status: "failed"}, f.err
	}
	return f.result, nil
}

func goodResult() repositories.TranscriptionResult {
	return repositories.TranscriptionResult{
		Status:          "completed",
		Transcript:      "Doctor: what brings you in. Patient: fever for three days.",
		WordCount:       10,
		DurationSeconds: 42,
	}
}

// soapAndSummary scripts the two model calls a successful pipeline makes.
func soapAndSummary() *llm.MockLLM {
	return llm.NewMockLLM(
		"## Subjective\n- Fever\n## Plan\n- Rest",
		"```json\n{\"summary\": \"## Visit Summary\\n- Fever, resolving\", \"structured_data\": {\"chief_complaint\": \"fever\"}}\n```",
	)
}

func queuedVisit(t *testing.T) *entities.Visit {
	t.Helper()
	v := entities.NewVisit("p1", entities.PatientContext{}, 10, 6)
	require.NoError(t, v.RecordAnswer("other", "Why have you come in today?", "fever", nil))
	v.CompleteIntake()
	v.QueueTranscription("gs://bucket/a.wav", "en-US")
	return v
}

func newTestWorker(visits *fakeVisits, queue *fakeQueue, transcriber repositories.Transcriber, model *llm.MockLLM) *Worker {
	logger := zap.NewNop()
	summaries := usecase.NewSummaryService(model, logger)
	pipeline := NewPipeline(visits, transcriber, summaries, nil, logger)
	return NewWorker(queue, visits, pipeline, Options{
		PollInterval:       10 * time.Millisecond,
		MaxRetryAttempts:   3,
		VisibilityInterval: time.Hour,
		HeartbeatInterval:  time.Hour,
	}, logger)
}

func message(visit *entities.Visit, retryCount int) *repositories.QueuedMessage {
	return &repositories.QueuedMessage{
		Job: repositories.TranscriptionJob{
			JobType:    "transcription",
			PatientID:  visit.PatientID,
			VisitID:    visit.ID,
			AudioRef:   "gs://bucket/a.wav",
			Language:   "en-US",
			RetryCount: retryCount,
		},
		MessageID:  "msg-1",
		PopReceipt: "receipt-1",
	}
}

func TestProcessMessageSuccess(t *testing.T) {
	visit := queuedVisit(t)
	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: goodResult()}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 0))

	assert.Equal(t, entities.TranscriptionStatusCompleted, visit.Transcription.Status)
	assert.NotEmpty(t, visit.SOAPNote)
	require.NotNil(t, visit.PostVisitSummary)
	assert.Equal(t, entities.VisitStatusCompleted, visit.Status)
	assert.Equal(t, []string{"delete"}, queue.ops)
	assert.Empty(t, queue.enqueued)
}

func TestProcessMessageDuplicateAfterCompletion(t *testing.T) {
	visit := queuedVisit(t)
	visit.StartTranscription(time.Now().UTC())
	visit.CompleteTranscription("transcript", 1, 10)
	visit.StoreSOAPNote("note")
	visit.StorePostVisitSummary("summary", nil)

	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: goodResult()}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 0))

	assert.Zero(t, transcriber.calls)
	assert.Equal(t, []string{"delete"}, queue.ops)
}

func TestProcessMessageResumesAfterTranscription(t *testing.T) {
	visit := queuedVisit(t)
	visit.StartTranscription(time.Now().UTC())
	visit.CompleteTranscription("Doctor: fever. Patient: yes.", 5, 20)

	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: goodResult()}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 1))

	// The transcribe stage is already done: only SOAP and summary run.
	assert.Zero(t, transcriber.calls)
	assert.NotEmpty(t, visit.SOAPNote)
	assert.Equal(t, entities.VisitStatusCompleted, visit.Status)
	assert.Equal(t, []string{"delete"}, queue.ops)
}

func TestProcessMessageFreshProcessingExtendsAndExits(t *testing.T) {
	visit := queuedVisit(t)
	visit.StartTranscription(time.Now().UTC().Add(-5 * time.Minute))

	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: goodResult()}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 0))

	assert.Zero(t, transcriber.calls)
	assert.Equal(t, []string{"extend"}, queue.ops)
}

func TestProcessMessageReclaimsStaleProcessing(t *testing.T) {
	visit := queuedVisit(t)
	visit.StartTranscription(time.Now().UTC().Add(-30 * time.Minute))

	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: goodResult()}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 0))

	assert.Equal(t, 1, transcriber.calls)
	assert.Equal(t, entities.VisitStatusCompleted, visit.Status)
	assert.Equal(t, []string{"delete"}, queue.ops)
}

func TestProcessMessageTransientFailureRequeuesBeforeDelete(t *testing.T) {
	visit := queuedVisit(t)
	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{err: errors.New("speech service unavailable")}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 1))

	require.Equal(t, []string{"enqueue", "delete"}, queue.ops)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, 2, queue.enqueued[0].RetryCount)
	assert.Equal(t, 120, queue.delays[0])
	// Not failed yet: a retry is still pending.
	assert.NotEqual(t, entities.TranscriptionStatusFailed, visit.Transcription.Status)
}

func TestProcessMessageRetriesExhausted(t *testing.T) {
	visit := queuedVisit(t)
	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{err: errors.New("speech service unavailable")}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 3))

	assert.Empty(t, queue.enqueued)
	assert.Equal(t, []string{"delete"}, queue.ops)
	assert.Equal(t, entities.TranscriptionStatusFailed, visit.Transcription.Status)
	assert.Equal(t, FailureCodeRetriesExhausted, visit.Transcription.ErrorMessage)
}

func TestProcessMessageVisitGoneIsPermanent(t *testing.T) {
	visits := newFakeVisits()
	queue := &fakeQueue{}
	w := newTestWorker(visits, queue, &fakeTranscriber{}, soapAndSummary())

	w.ProcessMessage(context.Background(), &repositories.QueuedMessage{
		Job:        repositories.TranscriptionJob{VisitID: "missing"},
		MessageID:  "msg-1",
		PopReceipt: "receipt-1",
	})

	assert.Equal(t, []string{"delete"}, queue.ops)
	assert.Empty(t, queue.enqueued)
}

func TestProcessMessageIncompleteResultIsTransient(t *testing.T) {
	visit := queuedVisit(t)
	visits := newFakeVisits(visit)
	queue := &fakeQueue{}
	transcriber := &fakeTranscriber{result: repositories.TranscriptionResult{Status: "completed", Transcript: "", WordCount: 0}}
	w := newTestWorker(visits, queue, transcriber, soapAndSummary())

	w.ProcessMessage(context.Background(), message(visit, 0))

	require.Equal(t, []string{"enqueue", "delete"}, queue.ops)
	assert.Equal(t, 60, queue.delays[0])
}

func TestBackoffSeconds(t *testing.T) {
	cases := []struct{ retry, want int }{
		{0, 60},
		{1, 120},
		{2, 240},
		{3, 300},
		{10, 300},
	}
	for _, c := range cases {
		if got := backoffSeconds(c.retry); got != c.want {
			t.Errorf("backoffSeconds(%d) = %d, want %d", c.retry, got, c.want)
		}
	}
}
