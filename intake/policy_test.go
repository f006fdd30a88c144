package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinicai/server/adapters/llm"
	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/intake"
)

func newEngine(t *testing.T, model *llm.MockLLM, mutate func(*intake.Config)) *intake.Engine {
	t.Helper()
	cfg := intake.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return intake.NewEngine(model, intake.NewKeywordClassifier(), intake.NewKeywordAnalyzer(), cfg, zap.NewNop())
}

func answerFirst(t *testing.T, engine *intake.Engine, visit *entities.Visit, complaint string) {
	t.Helper()
	first := engine.FirstQuestion()
	require.NoError(t, visit.RecordAnswer(string(engine.Classify(first)), first, complaint, nil))
}

// A diabetes presentation must reach family history early and close within
// budget: the mandatory categories for a chronic profile are probed before the
// canonical sequence continues.
func TestDialogueDiabetesWalkthrough(t *testing.T) {
	model := llm.NewMockLLM()
	model.Err = errors.New("model offline") // force deterministic templates
	engine := newEngine(t, model, nil)

	visit := entities.NewVisit("p1", entities.PatientContext{Gender: entities.GenderMale}, 10, 6)
	answerFirst(t, engine, visit, "Diabetes follow up, my sugar readings have been high")

	var categories []intake.Category
	for {
		next, err := engine.Next(context.Background(), visit)
		require.NoError(t, err)
		require.NotEmpty(t, next.Text)
		if next.Closing {
			require.NoError(t, visit.RecordAnswer(string(next.Category), next.Text, "no, that is everything", nil))
			break
		}
		categories = append(categories, engine.Classify(next.Text))
		require.NoError(t, visit.RecordAnswer(string(engine.Classify(next.Text)), next.Text, "answered", nil))
	}

	assert.Equal(t, []intake.Category{
		intake.CategoryDuration,
		intake.CategoryMedications,
		intake.CategoryChronicMonitoring,
		intake.CategoryFamilyHistory,
		intake.CategoryChronicMonitoring,
	}, categories)

	// Family history within the first five questions (opening included).
	familyIndex := -1
	for i, c := range categories {
		if c == intake.CategoryFamilyHistory {
			familyIndex = i + 2 // +1 opening question, +1 one-based
		}
	}
	assert.LessOrEqual(t, familyIndex, 5)

	assert.True(t, engine.ShouldComplete(visit))
	assert.LessOrEqual(t, visit.Intake.QuestionCount(), 10)
}

func TestTravelOverride(t *testing.T) {
	model := llm.NewMockLLM()
	model.Err = errors.New("model offline")
	engine := newEngine(t, model, nil)

	general := entities.NewVisit("p1", entities.PatientContext{RecentlyTravelled: true}, 10, 6)
	answerFirst(t, engine, general, "fever and cough for three days")
	next, err := engine.Next(context.Background(), general)
	require.NoError(t, err)
	assert.Equal(t, intake.TravelQuestionGeneral, next.Text)
	assert.Equal(t, intake.CategoryTravel, next.Category)

	gi := entities.NewVisit("p2", entities.PatientContext{RecentlyTravelled: true}, 10, 6)
	answerFirst(t, engine, gi, "fever and diarrhea since my trip")
	next, err = engine.Next(context.Background(), gi)
	require.NoError(t, err)
	assert.Equal(t, intake.TravelQuestionGI, next.Text)

	// Without the travel flag the override never fires.
	home := entities.NewVisit("p3", entities.PatientContext{}, 10, 6)
	answerFirst(t, engine, home, "fever and diarrhea")
	next, err = engine.Next(context.Background(), home)
	require.NoError(t, err)
	assert.NotEqual(t, intake.TravelQuestionGI, next.Text)
	assert.NotEqual(t, intake.TravelQuestionGeneral, next.Text)
}

// When the model rephrases an already-asked question, the engine must fall
// back to the category template instead of repeating itself.
func TestDuplicateModelOutputFallsBackToTemplate(t *testing.T) {
	duration := intake.FallbackQuestion(intake.CategoryDuration, 0, false)
	model := llm.NewMockLLM(duration) // model keeps producing the asked question
	engine := newEngine(t, model, nil)

	visit := entities.NewVisit("p1", entities.PatientContext{}, 10, 6)
	answerFirst(t, engine, visit, "fever and cough")
	require.NoError(t, visit.RecordAnswer(string(intake.CategoryDuration), duration, "three days", nil))

	next, err := engine.Next(context.Background(), visit)
	require.NoError(t, err)
	assert.Equal(t, intake.FallbackQuestion(intake.CategoryMedications, 0, false), next.Text)
	assert.Equal(t, intake.CategoryMedications, next.Category)
}

func TestGenerationUnavailableWithoutTemplates(t *testing.T) {
	model := llm.NewMockLLM()
	model.Err = errors.New("model offline")
	engine := newEngine(t, model, func(cfg *intake.Config) {
		cfg.FallbackToTemplates = false
	})

	visit := entities.NewVisit("p1", entities.PatientContext{}, 10, 6)
	answerFirst(t, engine, visit, "fever and cough")

	_, err := engine.Next(context.Background(), visit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, intake.ErrGenerationUnavailable))
}

func TestClosingForcedBeforeBudget(t *testing.T) {
	model := llm.NewMockLLM()
	model.Err = errors.New("model offline")
	engine := newEngine(t, model, func(cfg *intake.Config) {
		cfg.QuestionBudget = 3
		cfg.MinimumQuestions = 1
	})

	visit := entities.NewVisit("p1", entities.PatientContext{}, 3, 1)
	answerFirst(t, engine, visit, "fever and cough")
	require.NoError(t, visit.RecordAnswer("duration", "How long have you had this?", "two days", nil))

	next, err := engine.Next(context.Background(), visit)
	require.NoError(t, err)
	assert.True(t, next.Closing)
	assert.Equal(t, intake.ClosingQuestionText, next.Text)
}

func TestNextAfterClosingReturnsNothing(t *testing.T) {
	model := llm.NewMockLLM()
	engine := newEngine(t, model, nil)

	visit := entities.NewVisit("p1", entities.PatientContext{}, 10, 6)
	answerFirst(t, engine, visit, "fever")
	require.NoError(t, visit.RecordAnswer("other", intake.ClosingQuestionText, "nothing else", nil))

	next, err := engine.Next(context.Background(), visit)
	require.NoError(t, err)
	assert.Empty(t, next.Text)
	assert.True(t, engine.ShouldComplete(visit))
}

func TestCompletionPercent(t *testing.T) {
	model := llm.NewMockLLM()
	engine := newEngine(t, model, nil)

	visit := entities.NewVisit("p1", entities.PatientContext{}, 10, 6)
	assert.Equal(t, 0, engine.CompletionPercent(visit))

	answerFirst(t, engine, visit, "fever and cough")
	pct := engine.CompletionPercent(visit)
	assert.GreaterOrEqual(t, pct, 10)
	assert.Less(t, pct, 100)

	visit.CompleteIntake()
	assert.Equal(t, 100, engine.CompletionPercent(visit))
}
