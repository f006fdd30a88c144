package api

// StartVisitRequest creates a visit and opens its intake session.
type StartVisitRequest struct {
	PatientID         string `json:"patient_id" validate:"required"`
	Gender            string `json:"gender"`
	RecentlyTravelled bool   `json:"recently_travelled"`
	AgeBand           *int   `json:"age_band,omitempty"`
}

// StartVisitResponse carries the fixed opening question.
type StartVisitResponse struct {
	VisitID       string `json:"visit_id"`
	FirstQuestion string `json:"first_question"`
}

// AnswerRequest records one answer against the pending question.
type AnswerRequest struct {
	Answer      string   `json:"answer" validate:"required"`
	Attachments []string `json:"attachments,omitempty"`
}

// AnswerResponse is the answer-and-advance result.
type AnswerResponse struct {
	NextQuestion      *string `json:"next_question"`
	IsComplete        bool    `json:"is_complete"`
	QuestionCount     int     `json:"question_count"`
	MaxQuestions      int     `json:"max_questions"`
	CompletionPercent int     `json:"completion_percent"`
	AllowsImageUpload bool    `json:"allows_image_upload"`
	Message           string  `json:"message,omitempty"`
}

// EditAnswerRequest replaces a stored answer by question number.
type EditAnswerRequest struct {
	Answer string `json:"answer" validate:"required"`
}

// SummaryResponse returns a generated clinical note.
type SummaryResponse struct {
	VisitID        string                 `json:"visit_id"`
	Summary        string                 `json:"summary"`
	StructuredData map[string]interface{} `json:"structured_data"`
	GeneratedAt    string                 `json:"generated_at"`
}

// AudioRequest registers a consultation recording for background processing.
type AudioRequest struct {
	AudioRef string `json:"audio_ref" validate:"required"`
	Language string `json:"language"`
}

// AudioResponse acknowledges the enqueued job.
type AudioResponse struct {
	VisitID   string `json:"visit_id"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
