package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/intake"
)

// IntakeProgress is broadcast to dashboard clients after every recorded answer.
type IntakeProgress struct {
	VisitID           string `json:"visit_id"`
	QuestionCount     int    `json:"question_count"`
	MaxQuestions      int    `json:"max_questions"`
	CompletionPercent int    `json:"completion_percent"`
	IsComplete        bool   `json:"is_complete"`
}

// ProgressPublisher receives intake progress events. Implementations must not
// block; a nil publisher disables events.
type ProgressPublisher interface {
	PublishIntakeProgress(progress IntakeProgress)
}

// AnswerIntakeResult is the combined answer-and-advance response.
type AnswerIntakeResult struct {
	NextQuestion      string
	IsComplete        bool
	QuestionCount     int
	MaxQuestions      int
	CompletionPercent int
	AllowsImageUpload bool
	Message           string
}

// AnswerIntakeService orchestrates one dialogue turn: record the patient's
// answer against the pending question, let the policy engine decide what
// comes next, and persist the session.
type AnswerIntakeService struct {
	visits repositories.VisitRepository
	engine *intake.Engine
	events ProgressPublisher
	logger *zap.Logger
}

// NewAnswerIntakeService creates the answer-and-advance use case.
func NewAnswerIntakeService(visits repositories.VisitRepository, engine *intake.Engine, events ProgressPublisher, logger *zap.Logger) *AnswerIntakeService {
	return &AnswerIntakeService{
		visits: visits,
		engine: engine,
		events: events,
		logger: logger,
	}
}

// StartVisit creates a visit with a fresh intake session and caches the fixed
// opening question as pending.
func (s *AnswerIntakeService) StartVisit(ctx context.Context, patientID string, patient entities.PatientContext) (*entities.Visit, string, error) {
	cfg := s.engine.Config()
	visit := entities.NewVisit(patientID, patient, cfg.QuestionBudget, cfg.MinimumQuestions)
	first := s.engine.FirstQuestion()
	visit.Intake.SetPendingQuestion(first)

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, "", fmt.Errorf("failed to create visit: %w", err)
	}
	s.logger.Info("visit started",
		zap.String("visit_id", visit.ID),
		zap.String("patient_id", patientID),
		zap.Int("question_budget", cfg.QuestionBudget))
	return visit, first, nil
}

// Execute records one answer and advances the dialogue. The question being
// answered is the cached pending question whenever one exists, so the stored
// transcript matches exactly what the client displayed.
func (s *AnswerIntakeService) Execute(ctx context.Context, patientID, visitID, answer string, attachments []string) (*AnswerIntakeResult, error) {
	visit, err := s.visits.FindByPatientAndVisitID(ctx, patientID, visitID)
	if err != nil {
		return nil, err
	}

	if visit.Intake.Status == entities.IntakeStatusCompleted {
		return nil, &entities.SessionCompletedError{VisitID: visitID}
	}

	currentQuestion := visit.Intake.PendingQuestion
	if currentQuestion == "" {
		// No cached question (client raced a restart): re-derive it.
		if visit.Intake.QuestionCount() == 0 {
			currentQuestion = s.engine.FirstQuestion()
		} else {
			next, nextErr := s.engine.Next(ctx, visit)
			if nextErr != nil {
				return nil, nextErr
			}
			currentQuestion = next.Text
		}
	}
	if strings.TrimSpace(currentQuestion) == "" {
		return nil, fmt.Errorf("no question available for visit %s", visitID)
	}

	category := s.engine.Classify(currentQuestion)
	if err := visit.RecordAnswer(string(category), currentQuestion, answer, attachments); err != nil {
		return nil, err
	}

	result := &AnswerIntakeResult{
		MaxQuestions: visit.Intake.QuestionBudget,
	}

	if s.engine.ShouldComplete(visit) {
		visit.CompleteIntake()
		result.IsComplete = true
		result.Message = "Intake completed successfully. Ready for next step."
	} else {
		next, nextErr := s.engine.Next(ctx, visit)
		if nextErr != nil {
			// Nothing saved yet: the client can retry the whole turn.
			return nil, nextErr
		}
		if next.Text == "" {
			visit.CompleteIntake()
			result.IsComplete = true
			result.Message = "Intake completed successfully. Ready for next step."
		} else {
			visit.Intake.SetPendingQuestion(next.Text)
			result.NextQuestion = next.Text
			result.AllowsImageUpload = intake.IsMedicationQuestion(next.Text)
			result.Message = fmt.Sprintf("Question %d of %d",
				visit.Intake.QuestionCount()+1, visit.Intake.QuestionBudget)
		}
	}

	visit.Intake.CompletionPercent = s.engine.CompletionPercent(visit)
	result.QuestionCount = visit.Intake.QuestionCount()
	result.CompletionPercent = visit.Intake.CompletionPercent

	if err := s.visits.Save(ctx, visit); err != nil {
		return nil, fmt.Errorf("failed to save visit: %w", err)
	}

	if s.events != nil {
		s.events.PublishIntakeProgress(IntakeProgress{
			VisitID:           visit.ID,
			QuestionCount:     result.QuestionCount,
			MaxQuestions:      result.MaxQuestions,
			CompletionPercent: result.CompletionPercent,
			IsComplete:        result.IsComplete,
		})
	}

	s.logger.Info("intake answer recorded",
		zap.String("visit_id", visit.ID),
		zap.String("category", string(category)),
		zap.Int("question_count", result.QuestionCount),
		zap.Int("completion_percent", result.CompletionPercent),
		zap.Bool("is_complete", result.IsComplete))

	return result, nil
}

// EditAnswer replaces a stored answer by its 1-based question number without
// re-running any policy decisions.
func (s *AnswerIntakeService) EditAnswer(ctx context.Context, patientID, visitID string, questionNumber int, newAnswer string) error {
	visit, err := s.visits.FindByPatientAndVisitID(ctx, patientID, visitID)
	if err != nil {
		return err
	}
	if err := visit.Intake.EditAnswer(questionNumber, newAnswer); err != nil {
		return err
	}
	if err := s.visits.Save(ctx, visit); err != nil {
		return fmt.Errorf("failed to save visit: %w", err)
	}
	s.logger.Info("intake answer edited",
		zap.String("visit_id", visit.ID),
		zap.Int("question_number", questionNumber))
	return nil
}
