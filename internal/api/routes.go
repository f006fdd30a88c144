package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
	"github.com/clinicai/server/intake"
	"github.com/clinicai/server/internal/auth"
	"github.com/clinicai/server/internal/events"
	"github.com/clinicai/server/usecase"
)

const claimsKey = "claims"

// Handler wires the HTTP surface to the use cases. All clinical decisions
// live below this layer; handlers only bind, authorize, delegate, and map
// errors.
type Handler struct {
	intakeService *usecase.AnswerIntakeService
	summaries     *usecase.SummaryService
	visits        repositories.VisitRepository
	queue         repositories.JobQueue
	hub           *events.Hub
	tokens        *auth.TokenService
	logger        *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	intakeService *usecase.AnswerIntakeService,
	summaries *usecase.SummaryService,
	visits repositories.VisitRepository,
	queue repositories.JobQueue,
	hub *events.Hub,
	tokens *auth.TokenService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		intakeService: intakeService,
		summaries:     summaries,
		visits:        visits,
		queue:         queue,
		hub:           hub,
		tokens:        tokens,
		logger:        logger,
	}
}

// InitRoutes initializes all API routes.
func (h *Handler) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "clinicai-server",
		})
	})

	v1 := e.Group("/api/v1")

	// Intake routes: patient-session tokens.
	patientRoutes := v1.Group("", h.requireRole(auth.RolePatient))
	patientRoutes.POST("/visits", h.startVisit)
	patientRoutes.POST("/visits/:visitID/intake/answers", h.answerIntake)
	patientRoutes.PUT("/visits/:visitID/intake/answers/:n", h.editAnswer)

	// Clinical routes: staff tokens.
	staffRoutes := v1.Group("", h.requireRole(auth.RoleStaff))
	staffRoutes.GET("/visits/:visitID/summary/previsit", h.preVisitSummary)
	staffRoutes.POST("/visits/:visitID/audio", h.registerAudio)

	// Dashboard feed with staff JWT.
	e.GET("/ws/dashboard", h.dashboardSocket)
}

func (h *Handler) startVisit(c echo.Context) error {
	var req StartVisitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	patientID := h.patientID(c, req.PatientID)
	if patientID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Patient ID is required",
		})
	}

	patient := entities.PatientContext{
		Gender:            entities.ParseGender(req.Gender),
		RecentlyTravelled: req.RecentlyTravelled,
		AgeBand:           req.AgeBand,
	}
	visit, firstQuestion, err := h.intakeService.StartVisit(c.Request().Context(), patientID, patient)
	if err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusCreated, StartVisitResponse{
		VisitID:       visit.ID,
		FirstQuestion: firstQuestion,
	})
}

func (h *Handler) answerIntake(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Answer == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Answer is required",
		})
	}

	result, err := h.intakeService.Execute(
		c.Request().Context(),
		h.patientID(c, ""),
		c.Param("visitID"),
		req.Answer,
		req.Attachments,
	)
	if err != nil {
		return h.domainError(c, err)
	}

	resp := AnswerResponse{
		IsComplete:        result.IsComplete,
		QuestionCount:     result.QuestionCount,
		MaxQuestions:      result.MaxQuestions,
		CompletionPercent: result.CompletionPercent,
		AllowsImageUpload: result.AllowsImageUpload,
		Message:           result.Message,
	}
	if result.NextQuestion != "" {
		resp.NextQuestion = &result.NextQuestion
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) editAnswer(c echo.Context) error {
	questionNumber, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Question number must be an integer",
		})
	}

	var req EditAnswerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Answer == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Answer is required",
		})
	}

	if err := h.intakeService.EditAnswer(
		c.Request().Context(),
		h.patientID(c, ""),
		c.Param("visitID"),
		questionNumber,
		req.Answer,
	); err != nil {
		return h.domainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) preVisitSummary(c echo.Context) error {
	ctx := c.Request().Context()
	visit, err := h.visits.FindByID(ctx, c.Param("visitID"))
	if err != nil {
		return h.domainError(c, err)
	}

	if visit.PreVisitSummary == nil {
		summary, structured := h.summaries.GeneratePreVisit(ctx, visit)
		visit.StorePreVisitSummary(summary, structured)
		if err := h.visits.Save(ctx, visit); err != nil {
			return h.domainError(c, err)
		}
	}

	return c.JSON(http.StatusOK, SummaryResponse{
		VisitID:        visit.ID,
		Summary:        visit.PreVisitSummary.Summary,
		StructuredData: visit.PreVisitSummary.StructuredData,
		GeneratedAt:    visit.PreVisitSummary.GeneratedAt.Format(time.RFC3339),
	})
}

func (h *Handler) registerAudio(c echo.Context) error {
	var req AudioRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.AudioRef == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Audio reference is required",
		})
	}

	ctx := c.Request().Context()
	visit, err := h.visits.FindByID(ctx, c.Param("visitID"))
	if err != nil {
		return h.domainError(c, err)
	}

	if visit.Transcription != nil && visit.Transcription.Status != entities.TranscriptionStatusFailed {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "TRANSCRIPTION_ALREADY_REGISTERED",
			Message: "A recording is already queued or processed for this visit",
		})
	}

	visit.QueueTranscription(req.AudioRef, req.Language)
	if err := h.visits.Save(ctx, visit); err != nil {
		return h.domainError(c, err)
	}

	messageID, err := h.queue.Enqueue(ctx, repositories.TranscriptionJob{
		JobType:   "transcription",
		PatientID: visit.PatientID,
		VisitID:   visit.ID,
		AudioRef:  req.AudioRef,
		Language:  req.Language,
		CreatedAt: time.Now().UTC(),
		RequestID: uuid.NewString(),
	}, 0)
	if err != nil {
		h.logger.Error("failed to enqueue transcription job",
			zap.String("visit_id", visit.ID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "ENQUEUE_FAILED",
			Message: "Could not queue the recording for processing",
		})
	}

	return c.JSON(http.StatusAccepted, AudioResponse{
		VisitID:   visit.ID,
		MessageID: messageID,
		Status:    string(entities.TranscriptionStatusPending),
	})
}

func (h *Handler) dashboardSocket(c echo.Context) error {
	claims, err := h.authenticate(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Valid JWT token is required",
		})
	}
	if claims.Role != auth.RoleStaff {
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only staff tokens may open the dashboard feed",
		})
	}
	return events.HandleWebSocket(h.hub, c, h.logger)
}

// requireRole validates the bearer token and checks its role.
func (h *Handler) requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := h.authenticate(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Valid JWT token is required",
				})
			}
			if claims.Role != role {
				return c.JSON(http.StatusForbidden, ErrorResponse{
					Error:   "invalid_role",
					Message: "Token role not allowed for this route",
				})
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func (h *Handler) authenticate(c echo.Context) (*auth.Claims, error) {
	header := c.Request().Header.Get("Authorization")
	if len(header) <= 7 || header[:7] != "Bearer " {
		return nil, errors.New("missing bearer token")
	}
	return h.tokens.ValidateToken(header[7:])
}

// patientID resolves the acting patient: the token claim wins, the request
// field is only a fallback for tokens without one.
func (h *Handler) patientID(c echo.Context, fallback string) string {
	if claims, ok := c.Get(claimsKey).(*auth.Claims); ok && claims.PatientID != "" {
		return claims.PatientID
	}
	return fallback
}

// domainError maps domain errors to stable HTTP codes.
func (h *Handler) domainError(c echo.Context, err error) error {
	if errors.Is(err, intake.ErrGenerationUnavailable) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "GENERATION_UNAVAILABLE",
			Message: "Question generation is temporarily unavailable, retry the request",
		})
	}

	var domainErr entities.DomainError
	if errors.As(err, &domainErr) {
		status := http.StatusInternalServerError
		switch domainErr.Code() {
		case "SESSION_COMPLETED", "BUDGET_EXCEEDED", "DUPLICATE_QUESTION":
			status = http.StatusConflict
		case "VISIT_NOT_FOUND", "PATIENT_NOT_FOUND":
			status = http.StatusNotFound
		case "INVALID_INDEX":
			status = http.StatusBadRequest
		}
		return c.JSON(status, ErrorResponse{
			Error:   domainErr.Code(),
			Message: domainErr.Error(),
		})
	}

	h.logger.Error("unhandled error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An unexpected error occurred",
	})
}
