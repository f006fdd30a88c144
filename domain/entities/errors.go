package entities

import "fmt"

// DomainError is implemented by all intake/visit errors so the API layer can
// map them to stable error codes without inspecting messages.
type DomainError interface {
	error
	Code() string
}

// SessionCompletedError is returned when an answer is recorded against a
// completed intake session.
type SessionCompletedError struct {
	VisitID string
}

func (e *SessionCompletedError) Error() string {
	return fmt.Sprintf("intake session for visit %s is already completed", e.VisitID)
}

func (e *SessionCompletedError) Code() string { return "SESSION_COMPLETED" }

// BudgetExceededError is returned when recording an answer would push the
// session past its question budget.
type BudgetExceededError struct {
	Count  int
	Budget int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("question budget exceeded: %d of %d questions already asked", e.Count, e.Budget)
}

func (e *BudgetExceededError) Code() string { return "BUDGET_EXCEEDED" }

// DuplicateQuestionError is returned when the same question text would be
// recorded twice in one session.
type DuplicateQuestionError struct {
	Question string
}

func (e *DuplicateQuestionError) Error() string {
	return fmt.Sprintf("question already asked: %q", e.Question)
}

func (e *DuplicateQuestionError) Code() string { return "DUPLICATE_QUESTION" }

// InvalidIndexError is returned for an out-of-range answer edit.
type InvalidIndexError struct {
	Index  int
	Length int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("question number %d out of range (1..%d)", e.Index, e.Length)
}

func (e *InvalidIndexError) Code() string { return "INVALID_INDEX" }

// VisitNotFoundError is returned when a visit lookup fails. The worker treats
// it as permanent: jobs referencing a missing visit are never retried.
type VisitNotFoundError struct {
	VisitID string
}

func (e *VisitNotFoundError) Error() string {
	return fmt.Sprintf("visit %s not found", e.VisitID)
}

func (e *VisitNotFoundError) Code() string { return "VISIT_NOT_FOUND" }

// PatientNotFoundError is returned when a patient lookup fails.
type PatientNotFoundError struct {
	PatientID string
}

func (e *PatientNotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.PatientID)
}

func (e *PatientNotFoundError) Code() string { return "PATIENT_NOT_FOUND" }
