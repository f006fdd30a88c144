package intake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
)

// DialogueStyle selects the prompt-construction strategy. Autonomous hands
// the model the whole category sequence and lets it pick; guided tells it
// exactly which category to phrase.
type DialogueStyle string

const (
	StyleAutonomous DialogueStyle = "autonomous"
	StyleGuided     DialogueStyle = "guided"
)

// ParseDialogueStyle normalizes a configured style string, defaulting to guided.
func ParseDialogueStyle(s string) DialogueStyle {
	if strings.EqualFold(strings.TrimSpace(s), string(StyleAutonomous)) {
		return StyleAutonomous
	}
	return StyleGuided
}

// ErrGenerationUnavailable wraps language-model failures when template
// fallback is disabled; the API layer surfaces it as retryable.
var ErrGenerationUnavailable = errors.New("question generation unavailable")

// Config is the explicit policy configuration, passed into the engine's
// constructor rather than read from ambient process state. The stop/coverage
// thresholds never converged upstream, so everything here is tunable.
type Config struct {
	QuestionBudget      int
	MinimumQuestions    int
	CoverageWeight      float64
	ProgressWeight      float64
	DuplicateThreshold  float64
	Style               DialogueStyle
	FallbackToTemplates bool
	MaxTokens           int
	Temperature         float32
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QuestionBudget:      10,
		MinimumQuestions:    6,
		CoverageWeight:      0.7,
		ProgressWeight:      0.3,
		DuplicateThreshold:  0.85,
		Style:               StyleGuided,
		FallbackToTemplates: true,
		MaxTokens:           256,
		Temperature:         0.4,
	}
}

// NextQuestion is the engine's per-turn decision. A zero value (empty Text)
// means there is nothing left to ask and the caller should complete the
// session.
type NextQuestion struct {
	Text     string
	Category Category
	Closing  bool
}

// Engine is the dialogue policy state machine. It is stateless between calls:
// every decision is recomputed from the visit's recorded history, so
// concurrent turns on different visits need no coordination.
type Engine struct {
	llm        repositories.LanguageModel
	classifier Classifier
	analyzer   Analyzer
	cfg        Config
	logger     *zap.Logger
}

// NewEngine creates a policy engine.
func NewEngine(llm repositories.LanguageModel, classifier Classifier, analyzer Analyzer, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		llm:        llm,
		classifier: classifier,
		analyzer:   analyzer,
		cfg:        cfg,
		logger:     logger,
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// FirstQuestion is the fixed opening prompt. It is never model-derived.
func (e *Engine) FirstQuestion() string { return FirstQuestionText }

// Classify exposes the injected classifier for callers that need to attribute
// a category to stored question text.
func (e *Engine) Classify(question string) Category {
	return e.classifier.Classify(question)
}

func (e *Engine) profileFor(v *entities.Visit) ConditionProfile {
	dialogue := strings.Join(v.Intake.AnswerTexts(), " ")
	return e.analyzer.Analyze(v.Intake.ChiefComplaint, dialogue, v.Patient)
}

func (e *Engine) coveredCounts(sess *entities.IntakeSession) map[Category]int {
	counts := make(map[Category]int)
	for _, qa := range sess.QuestionsAsked {
		counts[e.classifier.Classify(qa.Question)]++
	}
	return counts
}

func closingAsked(sess *entities.IntakeSession) bool {
	closing := NormalizeQuestion(ClosingQuestionText)
	for _, qa := range sess.QuestionsAsked {
		if NormalizeQuestion(qa.Question) == closing {
			return true
		}
	}
	return false
}

// ShouldStop is the early-stop decision: true at the hard cap, never below
// the minimum floor, and in between only once every mandatory category for
// the detected condition profile has been covered.
func (e *Engine) ShouldStop(v *entities.Visit) bool {
	sess := v.Intake
	count := sess.QuestionCount()
	if count >= e.cfg.QuestionBudget {
		return true
	}
	if count < e.cfg.MinimumQuestions {
		return false
	}
	profile := e.profileFor(v)
	covered := e.coveredCounts(sess)
	for _, c := range MandatoryCategories(profile, v.Patient) {
		if covered[c] == 0 {
			return false
		}
	}
	return true
}

// ShouldComplete reports whether the session is finished: budget exhausted or
// the mandatory closing question has been answered.
func (e *Engine) ShouldComplete(v *entities.Visit) bool {
	sess := v.Intake
	if sess.Status == entities.IntakeStatusCompleted {
		return true
	}
	if sess.QuestionCount() >= e.cfg.QuestionBudget {
		return true
	}
	return closingAsked(sess)
}

// Next computes the next question for a probing session. It never returns a
// question already asked: a duplicate model phrasing falls back to the static
// template for the category or moves on to the next one.
func (e *Engine) Next(ctx context.Context, v *entities.Visit) (NextQuestion, error) {
	sess := v.Intake
	if closingAsked(sess) || !sess.CanAskMore() {
		return NextQuestion{}, nil
	}

	// Closing gate: force the mandatory closing question as the last
	// question before the budget, or once coverage allows an early stop.
	if sess.QuestionCount() >= e.cfg.QuestionBudget-1 || e.ShouldStop(v) {
		return NextQuestion{Text: ClosingQuestionText, Category: CategoryOther, Closing: true}, nil
	}

	profile := e.profileFor(v)
	covered := e.coveredCounts(sess)
	asked := sess.AskedQuestionTexts()

	// Travel override: when recent travel is clinically relevant and not yet
	// covered, the travel question is asked with fixed phrasing ahead of any
	// model-driven question.
	if v.Patient.RecentlyTravelled && profile.IsTravelRelated && covered[CategoryTravel] == 0 {
		text := TravelQuestionGeneral
		if GISuggestive(v.Intake.ChiefComplaint + " " + strings.Join(v.Intake.AnswerTexts(), " ")) {
			text = TravelQuestionGI
		}
		return NextQuestion{Text: text, Category: CategoryTravel}, nil
	}

	for _, cand := range e.candidates(profile, v.Patient) {
		if covered[cand.category] != cand.askIndex {
			continue
		}

		text, err := e.phrase(ctx, v, cand.category, cand.askIndex)
		if err != nil {
			if !e.cfg.FallbackToTemplates {
				return NextQuestion{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
			}
			text = ""
		}
		if text != "" && IsDuplicateQuestion(text, asked, e.cfg.DuplicateThreshold) {
			e.logger.Debug("model question duplicated history, using template",
				zap.String("category", string(cand.category)))
			text = ""
		}
		if text == "" {
			text = FallbackQuestion(cand.category, cand.askIndex, SubstitutePastEpisodes(profile))
		}
		if text == "" || IsDuplicateQuestion(text, asked, e.cfg.DuplicateThreshold) {
			continue
		}
		return NextQuestion{Text: text, Category: cand.category}, nil
	}

	// Every eligible category is exhausted; close the session.
	return NextQuestion{Text: ClosingQuestionText, Category: CategoryOther, Closing: true}, nil
}

// candidate is one probing slot: a category and which ask (0-based) of that
// category the slot represents.
type candidate struct {
	category Category
	askIndex int
}

// candidates yields eligible probing slots in priority order: the profile's
// mandatory block first, then the rest of the canonical sequence. Within each
// block every category gets its first ask before any category is re-probed,
// so a multi-ask category never crowds out an unasked mandatory one.
func (e *Engine) candidates(profile ConditionProfile, patient entities.PatientContext) []candidate {
	var out []candidate
	seen := make(map[Category]bool)
	appendBlock := func(block []Category) {
		var repeats []candidate
		for _, c := range block {
			if seen[c] || !Eligible(c, profile, patient) {
				continue
			}
			seen[c] = true
			out = append(out, candidate{category: c, askIndex: 0})
			for i := 1; i < MaxAsks(c); i++ {
				repeats = append(repeats, candidate{category: c, askIndex: i})
			}
		}
		out = append(out, repeats...)
	}
	appendBlock(MandatoryCategories(profile, patient))
	appendBlock(CanonicalSequence)
	return out
}

// phrase asks the language model to word one question for the category and
// normalizes the output format: a single line ending in a question mark.
func (e *Engine) phrase(ctx context.Context, v *entities.Visit, category Category, askIndex int) (string, error) {
	messages := e.buildPrompt(v, category, askIndex)
	out, err := e.llm.Complete(ctx, messages, e.cfg.MaxTokens, e.cfg.Temperature)
	if err != nil {
		e.logger.Warn("language model call failed",
			zap.String("category", string(category)),
			zap.Error(err))
		return "", err
	}
	text := strings.TrimSpace(strings.ReplaceAll(out, "\n", " "))
	if text == "" {
		return "", fmt.Errorf("empty completion for category %s", category)
	}
	if !strings.HasSuffix(text, "?") {
		text = strings.TrimRight(text, ". ") + "?"
	}
	return text, nil
}

// subAreaHints steer the multi-ask categories toward a distinct sub-area on
// each probe.
var subAreaHints = map[Category][]string{
	CategoryChronicMonitoring: {
		"home readings such as blood sugar or blood pressure",
		"recent lab tests and their results",
		"recommended screenings and any complications",
		"medication adherence and missed doses",
	},
	CategoryAssociatedSymptoms: {
		"other symptoms accompanying the main concern",
		"changes in appetite, sleep, or energy",
		"any remaining symptoms not yet mentioned",
	},
}

var categoryTopics = map[Category]string{
	CategoryDuration:           "duration of the symptoms and when they started",
	CategoryTriggers:           "triggers or aggravating factors (exertion, food, stress, environment)",
	CategoryPain:               "pain assessment: location, intensity on a 0-10 scale, character, radiation, relieving factors",
	CategoryTemporal:           "the pattern of symptoms over the day (constant or coming and going)",
	CategoryTravel:             "recent travel in the last 1-3 months and possible exposures",
	CategoryAllergies:          "allergies (hives, swelling, wheeze, sneezing, runny nose)",
	CategoryMedications:        "current medications and remedies, prescribed and over-the-counter, with dose, frequency and adherence",
	CategoryPastHistory:        "past medical history, prior surgeries or hospitalizations",
	CategoryFamilyHistory:      "family history of similar or related conditions, naming which relatives",
	CategorySocialLifestyle:    "social history: smoking, alcohol, diet, exercise, occupation and exposures",
	CategoryWomensHealth:       "menstrual, pregnancy or other gynecologic history",
	CategoryFunctionalStatus:   "impact on daily activities and any caregiver or assistive needs",
	CategoryAssociatedSymptoms: "associated symptoms beyond the main concern",
	CategoryChronicMonitoring:  "how the chronic condition is monitored",
}

func (e *Engine) buildPrompt(v *entities.Visit, category Category, askIndex int) []repositories.ChatMessage {
	sess := v.Intake
	answers := sess.AnswerTexts()
	if len(answers) > 3 {
		answers = answers[len(answers)-3:]
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Chief complaint: %s.\n", orNA(sess.ChiefComplaint))
	fmt.Fprintf(&user, "Previous answers (last 3): %s.\n", strings.Join(answers, "; "))
	fmt.Fprintf(&user, "Already asked: %v.\n", sess.AskedQuestionTexts())
	fmt.Fprintf(&user, "Current question count: %d/%d.\n\n", sess.QuestionCount(), sess.QuestionBudget)

	switch e.cfg.Style {
	case StyleAutonomous:
		user.WriteString("You are a medical intake assistant.\n")
		user.WriteString("Ask ONE clear, symptom-focused, professional question.\n")
		user.WriteString("Do NOT repeat questions or topics already covered.\n")
		user.WriteString("Work through duration, triggers, pain (only if painful), travel (only if recently travelled), allergies (only if allergic signs), medications, past history, family history (only for chronic or hereditary relevance), social history, gynecologic history (female patients only), and functional status, skipping anything already answered.\n")
		fmt.Fprintf(&user, "The next unmet item is: %s.\n", categoryTopics[category])
	default:
		fmt.Fprintf(&user, "Ask ONE clear, concise, professional question about %s.\n", categoryTopics[category])
	}
	if hints, ok := subAreaHints[category]; ok && askIndex < len(hints) {
		fmt.Fprintf(&user, "Focus specifically on %s.\n", hints[askIndex])
	}
	user.WriteString("Return only the question text.")

	return []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "You are a clinical intake assistant. Never repeat prior questions."},
		{Role: repositories.UserRole, Content: user.String()},
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// CompletionPercent estimates intake progress: a weighted blend of category
// coverage (over the categories relevant to this profile) and raw question
// progress, floored at 10 once anything has been answered and pinned to 100
// on completion.
func (e *Engine) CompletionPercent(v *entities.Visit) int {
	sess := v.Intake
	if sess.Status == entities.IntakeStatusCompleted {
		return 100
	}
	count := sess.QuestionCount()
	if count == 0 {
		return 0
	}

	profile := e.profileFor(v)
	expected := ExpectedCategories(profile, v.Patient)
	covered := e.coveredCounts(sess)

	coveredKeys := 0
	for c := range expected {
		if covered[c] > 0 {
			coveredKeys++
		}
	}
	coverage := 0.0
	if len(expected) > 0 {
		coverage = float64(coveredKeys) / float64(len(expected))
	}
	progress := 0.0
	if e.cfg.QuestionBudget > 0 {
		progress = math.Min(float64(count)/float64(e.cfg.QuestionBudget), 1.0)
	}

	score := int(math.Round((e.cfg.CoverageWeight*coverage + e.cfg.ProgressWeight*progress) * 100))
	if score > 100 {
		score = 100
	}
	if score < 10 {
		score = 10
	}
	return score
}

var medicationKeywords = []string{
	"medication", "medicine", "drug", "dose", "frequency", "prescription",
	"remedy", "remedies", "treatment",
}

// IsMedicationQuestion detects medication questions, which unlock
// prescription-photo upload on the client.
func IsMedicationQuestion(question string) bool {
	t := strings.ToLower(question)
	for _, k := range medicationKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}
