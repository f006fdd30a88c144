package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/usecase"
)

// StageState reports how far the pipeline got for one job.
type StageState string

const (
	StageStatePending   StageState = "pending"
	StageStateRunning   StageState = "running"
	StageStateCompleted StageState = "completed"
	StageStateFailed    StageState = "failed"
	StageStateSkipped   StageState = "skipped"
)

// Stage is one resumable unit of post-visit processing. Done reports whether
// the visit already carries this stage's output, so a retried job resumes
// instead of redoing work.
type Stage struct {
	Name string
	Done func(visit *entities.Visit) bool
	Run  func(ctx context.Context, visit *entities.Visit) error
}

// StageEvent is emitted to the dashboard feed on every stage transition.
type StageEvent struct {
	VisitID string     `json:"visit_id"`
	Stage   string     `json:"stage"`
	State   StageState `json:"state"`
	Error   string     `json:"error,omitempty"`
}

// StagePublisher receives stage transition events. A nil publisher disables
// the feed.
type StagePublisher interface {
	PublishStageEvent(event StageEvent)
}

// Pipeline runs the fixed post-visit sequence: transcribe the consultation
// recording, generate the SOAP note, generate the post-visit summary. The
// visit is saved after each completed stage so a crashed worker loses at most
// one stage of work.
type Pipeline struct {
	visits      repositories.VisitRepository
	transcriber repositories.Transcriber
	summaries   *usecase.SummaryService
	events      StagePublisher
	logger      *zap.Logger
}

// NewPipeline creates the post-visit pipeline.
func NewPipeline(
	visits repositories.VisitRepository,
	transcriber repositories.Transcriber,
	summaries *usecase.SummaryService,
	events StagePublisher,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		visits:      visits,
		transcriber: transcriber,
		summaries:   summaries,
		events:      events,
		logger:      logger,
	}
}

func (p *Pipeline) stages() []Stage {
	return []Stage{
		{
			Name: "transcribe",
			Done: func(v *entities.Visit) bool {
				return v.Transcription != nil && v.Transcription.Status == entities.TranscriptionStatusCompleted
			},
			Run: p.runTranscribe,
		},
		{
			Name: "soap_note",
			Done: func(v *entities.Visit) bool {
				return v.SOAPNote != ""
			},
			Run: p.runSOAP,
		},
		{
			Name: "post_visit_summary",
			Done: func(v *entities.Visit) bool {
				return v.PostVisitSummary != nil
			},
			Run: p.runPostVisitSummary,
		},
	}
}

// Run executes the remaining stages for the visit. Returns the visit in its
// final state and the first stage error, if any. Already-done stages are
// skipped, which makes retried jobs resumable.
func (p *Pipeline) Run(ctx context.Context, visit *entities.Visit) error {
	for _, stage := range p.stages() {
		if stage.Done(visit) {
			p.publish(StageEvent{VisitID: visit.ID, Stage: stage.Name, State: StageStateSkipped})
			continue
		}

		p.publish(StageEvent{VisitID: visit.ID, Stage: stage.Name, State: StageStateRunning})
		started := time.Now()

		if err := stage.Run(ctx, visit); err != nil {
			p.publish(StageEvent{VisitID: visit.ID, Stage: stage.Name, State: StageStateFailed, Error: err.Error()})
			p.logger.Error("pipeline stage failed",
				zap.String("visit_id", visit.ID),
				zap.String("stage", stage.Name),
				zap.Duration("elapsed", time.Since(started)),
				zap.Error(err))
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		if err := p.visits.Save(ctx, visit); err != nil {
			return fmt.Errorf("stage %s: failed to save visit: %w", stage.Name, err)
		}

		p.publish(StageEvent{VisitID: visit.ID, Stage: stage.Name, State: StageStateCompleted})
		p.logger.Info("pipeline stage completed",
			zap.String("visit_id", visit.ID),
			zap.String("stage", stage.Name),
			zap.Duration("elapsed", time.Since(started)))
	}
	return nil
}

// ErrNoAudioRef marks a job that can never succeed: retrying will not make
// the recording appear.
var ErrNoAudioRef = errors.New("visit has no audio reference")

func (p *Pipeline) runTranscribe(ctx context.Context, visit *entities.Visit) error {
	if visit.Transcription == nil || visit.Transcription.AudioRef == "" {
		return fmt.Errorf("visit %s: %w", visit.ID, ErrNoAudioRef)
	}

	result, err := p.transcriber.Transcribe(ctx, visit.Transcription.AudioRef, visit.Transcription.Language)
	if err != nil {
		return err
	}
	if result.Status != "completed" || result.Transcript == "" || result.WordCount == 0 {
		return fmt.Errorf("transcription result incomplete: status=%s word_count=%d", result.Status, result.WordCount)
	}

	visit.CompleteTranscription(result.Transcript, result.WordCount, result.DurationSeconds)
	return nil
}

func (p *Pipeline) runSOAP(ctx context.Context, visit *entities.Visit) error {
	note, err := p.summaries.GenerateSOAP(ctx, visit)
	if err != nil {
		return err
	}
	visit.StoreSOAPNote(note)
	return nil
}

func (p *Pipeline) runPostVisitSummary(ctx context.Context, visit *entities.Visit) error {
	summary, structured := p.summaries.GeneratePostVisit(ctx, visit)
	visit.StorePostVisitSummary(summary, structured)
	return nil
}

func (p *Pipeline) publish(event StageEvent) {
	if p.events != nil {
		p.events.PublishStageEvent(event)
	}
}
