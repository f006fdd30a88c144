package repositories

import (
	"context"

	"github.com/clinicai/server/domain/entities"
)

// VisitRepository defines data access for visits.
type VisitRepository interface {
	Create(ctx context.Context, visit *entities.Visit) error
	FindByID(ctx context.Context, visitID string) (*entities.Visit, error)
	FindByPatientAndVisitID(ctx context.Context, patientID, visitID string) (*entities.Visit, error)
	Save(ctx context.Context, visit *entities.Visit) error
	// TryClaimTranscription flips the transcription status from pending to
	// processing only if it is still pending, narrowing (not closing) the
	// race window between two workers' idempotency checks.
	TryClaimTranscription(ctx context.Context, visitID string) (bool, error)
}
