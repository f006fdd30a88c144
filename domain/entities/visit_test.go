package entities

import (
	"errors"
	"testing"
	"time"
)

func newTestVisit() *Visit {
	return NewVisit("patient-1", PatientContext{Gender: GenderFemale}, 10, 6)
}

func TestRecordAnswerCapturesChiefComplaint(t *testing.T) {
	v := newTestVisit()
	v.Intake.SetPendingQuestion("Why have you come in today?")

	if err := v.RecordAnswer("other", "Why have you come in today?", "I have had a fever for two days", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	if v.Intake.ChiefComplaint != "I have had a fever for two days" {
		t.Errorf("chief complaint = %q", v.Intake.ChiefComplaint)
	}
	if v.Intake.PendingQuestion != "" {
		t.Errorf("pending question not cleared: %q", v.Intake.PendingQuestion)
	}
	if got := v.Intake.QuestionsAsked[0].SequenceNumber; got != 1 {
		t.Errorf("sequence number = %d, want 1", got)
	}

	// Second answer must not overwrite the complaint.
	if err := v.RecordAnswer("duration", "How long?", "two days", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if v.Intake.ChiefComplaint != "I have had a fever for two days" {
		t.Errorf("chief complaint overwritten: %q", v.Intake.ChiefComplaint)
	}
	if got := v.Intake.QuestionsAsked[1].SequenceNumber; got != 2 {
		t.Errorf("sequence number = %d, want 2", got)
	}
}

func TestRecordAnswerAfterCompletion(t *testing.T) {
	v := newTestVisit()
	if err := v.RecordAnswer("other", "Q1", "A1", nil); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	v.CompleteIntake()

	err := v.RecordAnswer("duration", "Q2", "A2", nil)
	var completed *SessionCompletedError
	if !errors.As(err, &completed) {
		t.Fatalf("error = %v, want SessionCompletedError", err)
	}
	if completed.VisitID != v.ID {
		t.Errorf("VisitID = %q, want %q", completed.VisitID, v.ID)
	}
}

func TestRecordAnswerBudget(t *testing.T) {
	v := NewVisit("patient-1", PatientContext{}, 2, 1)
	if err := v.RecordAnswer("other", "Q1", "A1", nil); err != nil {
		t.Fatal(err)
	}
	if err := v.RecordAnswer("duration", "Q2", "A2", nil); err != nil {
		t.Fatal(err)
	}

	err := v.RecordAnswer("triggers", "Q3", "A3", nil)
	var budget *BudgetExceededError
	if !errors.As(err, &budget) {
		t.Fatalf("error = %v, want BudgetExceededError", err)
	}
	if budget.Count != 2 || budget.Budget != 2 {
		t.Errorf("budget error = %+v", budget)
	}
}

func TestRecordAnswerRejectsDuplicateQuestion(t *testing.T) {
	v := newTestVisit()
	if err := v.RecordAnswer("duration", "How long have you had this?", "a week", nil); err != nil {
		t.Fatal(err)
	}

	err := v.RecordAnswer("duration", "  how long have you had this? ", "a week", nil)
	var dup *DuplicateQuestionError
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateQuestionError", err)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	v := newTestVisit()
	v.CompleteIntake()
	first := *v.Intake.CompletedAt

	v.CompleteIntake()
	if !v.Intake.CompletedAt.Equal(first) {
		t.Error("CompletedAt changed on second Complete")
	}
	if v.Intake.CompletionPercent != 100 {
		t.Errorf("completion percent = %d, want 100", v.Intake.CompletionPercent)
	}
	if v.Status != VisitStatusTranscription {
		t.Errorf("visit status = %q", v.Status)
	}
}

func TestEditAnswer(t *testing.T) {
	v := newTestVisit()
	if err := v.RecordAnswer("other", "Q1", "old", nil); err != nil {
		t.Fatal(err)
	}

	if err := v.Intake.EditAnswer(1, " new answer "); err != nil {
		t.Fatalf("EditAnswer: %v", err)
	}
	if got := v.Intake.QuestionsAsked[0].Answer; got != "new answer" {
		t.Errorf("answer = %q", got)
	}

	var invalid *InvalidIndexError
	if err := v.Intake.EditAnswer(0, "x"); !errors.As(err, &invalid) {
		t.Errorf("index 0: error = %v, want InvalidIndexError", err)
	}
	if err := v.Intake.EditAnswer(2, "x"); !errors.As(err, &invalid) {
		t.Errorf("index 2: error = %v, want InvalidIndexError", err)
	}
}

func TestTranscriptionLifecycle(t *testing.T) {
	v := newTestVisit()
	v.QueueTranscription("gs://bucket/audio.wav", "en-US")
	if v.Transcription.Status != TranscriptionStatusPending {
		t.Fatalf("status = %q", v.Transcription.Status)
	}

	started := time.Now().UTC().Add(-30 * time.Minute)
	v.StartTranscription(started)
	if !v.Transcription.StaleSince(20*time.Minute, time.Now().UTC()) {
		t.Error("30-minute-old processing state should be stale")
	}
	if v.Transcription.StaleSince(20*time.Minute, started.Add(5*time.Minute)) {
		t.Error("5-minute-old processing state should not be stale")
	}

	v.ResetStaleTranscription()
	if v.Transcription.Status != TranscriptionStatusPending {
		t.Errorf("status after reset = %q", v.Transcription.Status)
	}
	if v.Transcription.StartedAt != nil {
		t.Error("StartedAt not cleared by reset")
	}

	v.StartTranscription(time.Now().UTC())
	v.CompleteTranscription("transcript text", 2, 12.5)
	if v.Transcription.Status != TranscriptionStatusCompleted {
		t.Errorf("status = %q", v.Transcription.Status)
	}
	if v.Status != VisitStatusSOAP {
		t.Errorf("visit status = %q", v.Status)
	}
}

func TestStorePostVisitSummaryClosesVisit(t *testing.T) {
	v := newTestVisit()
	v.StorePostVisitSummary("## Summary", map[string]interface{}{"chief_complaint": "fever"})
	if v.Status != VisitStatusCompleted {
		t.Errorf("visit status = %q, want completed", v.Status)
	}
	if v.PostVisitSummary == nil || v.PostVisitSummary.Summary != "## Summary" {
		t.Error("post-visit summary not stored")
	}
}
