package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
)

type VisitRepository struct {
	collection *mongo.Collection
}

// NewVisitRepository creates a MongoDB-backed visit repository.
func NewVisitRepository(db *mongo.Database) repositories.VisitRepository {
	return &VisitRepository{
		collection: db.Collection("visits"),
	}
}

// Create implements repositories.VisitRepository
func (r *VisitRepository) Create(ctx context.Context, visit *entities.Visit) error {
	if visit == nil {
		return errors.New("visit cannot be nil")
	}
	if _, err := r.collection.InsertOne(ctx, visit); err != nil {
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

// FindByID implements repositories.VisitRepository
func (r *VisitRepository) FindByID(ctx context.Context, visitID string) (*entities.Visit, error) {
	if visitID == "" {
		return nil, errors.New("visit ID cannot be empty")
	}

	var visit entities.Visit
	err := r.collection.FindOne(ctx, bson.M{"_id": visitID}).Decode(&visit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &entities.VisitNotFoundError{VisitID: visitID}
		}
		return nil, fmt.Errorf("failed to get visit %s: %w", visitID, err)
	}
	return &visit, nil
}

// FindByPatientAndVisitID implements repositories.VisitRepository
func (r *VisitRepository) FindByPatientAndVisitID(ctx context.Context, patientID, visitID string) (*entities.Visit, error) {
	if patientID == "" || visitID == "" {
		return nil, errors.New("patient ID and visit ID cannot be empty")
	}

	var visit entities.Visit
	err := r.collection.FindOne(ctx, bson.M{"_id": visitID, "patient_id": patientID}).Decode(&visit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &entities.VisitNotFoundError{VisitID: visitID}
		}
		return nil, fmt.Errorf("failed to get visit %s for patient %s: %w", visitID, patientID, err)
	}
	return &visit, nil
}

// Save implements repositories.VisitRepository
func (r *VisitRepository) Save(ctx context.Context, visit *entities.Visit) error {
	if visit == nil {
		return errors.New("visit cannot be nil")
	}
	if visit.ID == "" {
		return errors.New("visit ID cannot be empty")
	}

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": visit.ID}, visit)
	if err != nil {
		return fmt.Errorf("failed to save visit: %w", err)
	}
	if result.MatchedCount == 0 {
		return &entities.VisitNotFoundError{VisitID: visit.ID}
	}
	return nil
}

// TryClaimTranscription implements repositories.VisitRepository with a
// conditional update: the pending-to-processing flip succeeds for exactly one
// caller.
func (r *VisitRepository) TryClaimTranscription(ctx context.Context, visitID string) (bool, error) {
	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":                  visitID,
			"transcription.status": string(entities.TranscriptionStatusPending),
		},
		bson.M{
			"$set": bson.M{
				"transcription.status":      string(entities.TranscriptionStatusProcessing),
				"transcription.started_at":  now,
				"transcription.dequeued_at": now,
				"updated_at":                now,
			},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim transcription for visit %s: %w", visitID, err)
	}
	return result.ModifiedCount == 1, nil
}
