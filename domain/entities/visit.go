package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// IntakeStatus represents the lifecycle of an intake session.
type IntakeStatus string

const (
	IntakeStatusInProgress IntakeStatus = "in_progress"
	IntakeStatusCompleted  IntakeStatus = "completed"
	IntakeStatusCancelled  IntakeStatus = "cancelled"
)

// TranscriptionStatus represents the lifecycle of consultation-audio processing.
type TranscriptionStatus string

const (
	TranscriptionStatusPending    TranscriptionStatus = "pending"
	TranscriptionStatusProcessing TranscriptionStatus = "processing"
	TranscriptionStatusCompleted  TranscriptionStatus = "completed"
	TranscriptionStatusFailed     TranscriptionStatus = "failed"
)

// QuestionAnswer is one entry of the intake transcript. The slice it lives in
// is append-only; insertion order is the dialogue order.
type QuestionAnswer struct {
	QuestionID     string    `json:"question_id" bson:"question_id"`
	Category       string    `json:"category" bson:"category"`
	Question       string    `json:"question" bson:"question"`
	Answer         string    `json:"answer" bson:"answer"`
	AskedAt        time.Time `json:"asked_at" bson:"asked_at"`
	SequenceNumber int       `json:"sequence_number" bson:"sequence_number"`
	Attachments    []string  `json:"attachments,omitempty" bson:"attachments,omitempty"`
}

// IntakeSession holds the per-visit dialogue state. All mutation goes through
// methods so the transition rules hold: no answers after completion, never
// more than QuestionBudget entries, sequence numbers match slice length.
type IntakeSession struct {
	ChiefComplaint    string           `json:"chief_complaint" bson:"chief_complaint"`
	QuestionsAsked    []QuestionAnswer `json:"questions_asked" bson:"questions_asked"`
	PendingQuestion   string           `json:"pending_question,omitempty" bson:"pending_question,omitempty"`
	QuestionBudget    int              `json:"question_budget" bson:"question_budget"`
	MinimumQuestions  int              `json:"minimum_questions" bson:"minimum_questions"`
	Status            IntakeStatus     `json:"status" bson:"status"`
	CompletionPercent int              `json:"completion_percent" bson:"completion_percent"`
	StartedAt         time.Time        `json:"started_at" bson:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// QuestionCount returns how many questions have been answered so far.
func (s *IntakeSession) QuestionCount() int {
	return len(s.QuestionsAsked)
}

// CanAskMore reports whether the session accepts another question.
func (s *IntakeSession) CanAskMore() bool {
	return s.Status == IntakeStatusInProgress && len(s.QuestionsAsked) < s.QuestionBudget
}

// ReachedMinimum reports whether the early-stop floor has been met.
func (s *IntakeSession) ReachedMinimum() bool {
	return len(s.QuestionsAsked) >= s.MinimumQuestions
}

// AddQuestionAnswer appends a new transcript entry. The question text should
// come from the pending-question cache so the stored question matches what the
// patient actually saw.
func (s *IntakeSession) AddQuestionAnswer(category, question, answer string, attachments []string) error {
	if s.Status == IntakeStatusCompleted {
		return &SessionCompletedError{}
	}
	if len(s.QuestionsAsked) >= s.QuestionBudget {
		return &BudgetExceededError{Count: len(s.QuestionsAsked), Budget: s.QuestionBudget}
	}
	normalized := strings.ToLower(strings.TrimSpace(question))
	for _, qa := range s.QuestionsAsked {
		if strings.ToLower(strings.TrimSpace(qa.Question)) == normalized {
			return &DuplicateQuestionError{Question: question}
		}
	}

	s.QuestionsAsked = append(s.QuestionsAsked, QuestionAnswer{
		QuestionID:     uuid.NewString(),
		Category:       category,
		Question:       question,
		Answer:         answer,
		AskedAt:        time.Now().UTC(),
		SequenceNumber: len(s.QuestionsAsked) + 1,
		Attachments:    attachments,
	})
	s.PendingQuestion = ""
	return nil
}

// SetPendingQuestion caches the question the client will render next. A
// subsequent AddQuestionAnswer must attribute the answer to exactly this text.
func (s *IntakeSession) SetPendingQuestion(question string) {
	s.PendingQuestion = question
}

// Complete marks the session finished. Idempotent: completing twice is a
// no-op, only answering after completion is an error.
func (s *IntakeSession) Complete() {
	if s.Status == IntakeStatusCompleted {
		return
	}
	s.Status = IntakeStatusCompleted
	s.CompletionPercent = 100
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// EditAnswer replaces the stored answer for a 1-based question number. Policy
// state is not recomputed for already-asked questions.
func (s *IntakeSession) EditAnswer(questionNumber int, newAnswer string) error {
	if questionNumber < 1 || questionNumber > len(s.QuestionsAsked) {
		return &InvalidIndexError{Index: questionNumber, Length: len(s.QuestionsAsked)}
	}
	s.QuestionsAsked[questionNumber-1].Answer = strings.TrimSpace(newAnswer)
	return nil
}

// AskedQuestionTexts returns the question texts in dialogue order.
func (s *IntakeSession) AskedQuestionTexts() []string {
	texts := make([]string, 0, len(s.QuestionsAsked))
	for _, qa := range s.QuestionsAsked {
		texts = append(texts, qa.Question)
	}
	return texts
}

// AnswerTexts returns the answer texts in dialogue order.
func (s *IntakeSession) AnswerTexts() []string {
	answers := make([]string, 0, len(s.QuestionsAsked))
	for _, qa := range s.QuestionsAsked {
		answers = append(answers, qa.Answer)
	}
	return answers
}

// TranscriptionSession tracks background processing of one consultation
// recording. StartedAt doubles as the staleness marker for crashed workers.
type TranscriptionSession struct {
	Status          TranscriptionStatus `json:"status" bson:"status"`
	AudioRef        string              `json:"audio_ref" bson:"audio_ref"`
	Language        string              `json:"language" bson:"language"`
	StartedAt       *time.Time          `json:"started_at,omitempty" bson:"started_at,omitempty"`
	DequeuedAt      *time.Time          `json:"dequeued_at,omitempty" bson:"dequeued_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty" bson:"error_message,omitempty"`
	Transcript      string              `json:"transcript,omitempty" bson:"transcript,omitempty"`
	WordCount       int                 `json:"word_count,omitempty" bson:"word_count,omitempty"`
	DurationSeconds float64             `json:"duration_seconds,omitempty" bson:"duration_seconds,omitempty"`
}

// StaleSince reports whether a processing state is older than threshold,
// which the worker treats as evidence of a crashed peer.
func (t *TranscriptionSession) StaleSince(threshold time.Duration, now time.Time) bool {
	if t.Status != TranscriptionStatusProcessing || t.StartedAt == nil {
		return false
	}
	return now.Sub(*t.StartedAt) >= threshold
}

// SummaryDocument is a generated clinical note plus its structured extract.
type SummaryDocument struct {
	Summary        string                 `json:"summary" bson:"summary"`
	StructuredData map[string]interface{} `json:"structured_data" bson:"structured_data"`
	GeneratedAt    time.Time              `json:"generated_at" bson:"generated_at"`
}

// VisitStatus tracks which stage of the visit workflow is active.
type VisitStatus string

const (
	VisitStatusIntake        VisitStatus = "intake"
	VisitStatusTranscription VisitStatus = "transcription"
	VisitStatusSOAP          VisitStatus = "soap_generation"
	VisitStatusCompleted     VisitStatus = "completed"
)

// Visit is the per-consultation aggregate: one intake session, at most one
// transcription session, and the generated notes.
type Visit struct {
	ID               string                `json:"id" bson:"_id"`
	PatientID        string                `json:"patient_id" bson:"patient_id"`
	Patient          PatientContext        `json:"patient" bson:"patient"`
	Status           VisitStatus           `json:"status" bson:"status"`
	CreatedAt        time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" bson:"updated_at"`
	Intake           *IntakeSession        `json:"intake" bson:"intake"`
	Transcription    *TranscriptionSession `json:"transcription,omitempty" bson:"transcription,omitempty"`
	PreVisitSummary  *SummaryDocument      `json:"pre_visit_summary,omitempty" bson:"pre_visit_summary,omitempty"`
	SOAPNote         string                `json:"soap_note,omitempty" bson:"soap_note,omitempty"`
	PostVisitSummary *SummaryDocument      `json:"post_visit_summary,omitempty" bson:"post_visit_summary,omitempty"`
}

// NewVisit creates a visit with a fresh in-progress intake session.
func NewVisit(patientID string, patient PatientContext, questionBudget, minimumQuestions int) *Visit {
	now := time.Now().UTC()
	return &Visit{
		ID:        uuid.NewString(),
		PatientID: patientID,
		Patient:   patient,
		Status:    VisitStatusIntake,
		CreatedAt: now,
		UpdatedAt: now,
		Intake: &IntakeSession{
			QuestionsAsked:   []QuestionAnswer{},
			QuestionBudget:   questionBudget,
			MinimumQuestions: minimumQuestions,
			Status:           IntakeStatusInProgress,
			StartedAt:        now,
		},
	}
}

func (v *Visit) touch() {
	v.UpdatedAt = time.Now().UTC()
}

// RecordAnswer appends a Q&A entry and captures the chief complaint from the
// first substantive answer. The complaint is immutable once set.
func (v *Visit) RecordAnswer(category, question, answer string, attachments []string) error {
	if err := v.Intake.AddQuestionAnswer(category, question, answer, attachments); err != nil {
		if completed, ok := err.(*SessionCompletedError); ok {
			completed.VisitID = v.ID
		}
		return err
	}
	if v.Intake.ChiefComplaint == "" && len(v.Intake.QuestionsAsked) == 1 {
		v.Intake.ChiefComplaint = strings.TrimSpace(answer)
	}
	v.touch()
	return nil
}

// CompleteIntake finishes the dialogue and advances the visit workflow.
func (v *Visit) CompleteIntake() {
	v.Intake.Complete()
	v.Status = VisitStatusTranscription
	v.touch()
}

// QueueTranscription records that a consultation recording was accepted for
// background processing.
func (v *Visit) QueueTranscription(audioRef, language string) {
	v.Transcription = &TranscriptionSession{
		Status:   TranscriptionStatusPending,
		AudioRef: audioRef,
		Language: language,
	}
	v.touch()
}

// StartTranscription marks this visit as owned by a worker.
func (v *Visit) StartTranscription(now time.Time) {
	if v.Transcription == nil {
		v.Transcription = &TranscriptionSession{}
	}
	v.Transcription.Status = TranscriptionStatusProcessing
	v.Transcription.StartedAt = &now
	v.Transcription.DequeuedAt = &now
	v.Transcription.ErrorMessage = ""
	v.touch()
}

// CompleteTranscription stores the transcript and advances the workflow.
func (v *Visit) CompleteTranscription(transcript string, wordCount int, durationSeconds float64) {
	now := time.Now().UTC()
	v.Transcription.Status = TranscriptionStatusCompleted
	v.Transcription.CompletedAt = &now
	v.Transcription.Transcript = transcript
	v.Transcription.WordCount = wordCount
	v.Transcription.DurationSeconds = durationSeconds
	v.Status = VisitStatusSOAP
	v.touch()
}

// FailTranscription marks processing permanently failed. The message must be
// a structured error code, never raw transcript or patient content.
func (v *Visit) FailTranscription(errorInfo string) {
	if v.Transcription == nil {
		v.Transcription = &TranscriptionSession{}
	}
	v.Transcription.Status = TranscriptionStatusFailed
	v.Transcription.ErrorMessage = errorInfo
	v.touch()
}

// ResetStaleTranscription returns a stuck processing state to pending so a
// healthy worker can claim the job again.
func (v *Visit) ResetStaleTranscription() {
	v.Transcription.Status = TranscriptionStatusPending
	v.Transcription.StartedAt = nil
	v.Transcription.DequeuedAt = nil
	v.Transcription.ErrorMessage = ""
	v.touch()
}

// StoreSOAPNote attaches the generated SOAP note.
func (v *Visit) StoreSOAPNote(note string) {
	v.SOAPNote = note
	v.touch()
}

// StorePreVisitSummary attaches the generated pre-visit note.
func (v *Visit) StorePreVisitSummary(summary string, structured map[string]interface{}) {
	v.PreVisitSummary = &SummaryDocument{
		Summary:        summary,
		StructuredData: structured,
		GeneratedAt:    time.Now().UTC(),
	}
	v.touch()
}

// StorePostVisitSummary attaches the generated post-visit note and closes the
// visit workflow.
func (v *Visit) StorePostVisitSummary(summary string, structured map[string]interface{}) {
	v.PostVisitSummary = &SummaryDocument{
		Summary:        summary,
		StructuredData: structured,
		GeneratedAt:    time.Now().UTC(),
	}
	v.Status = VisitStatusCompleted
	v.touch()
}
