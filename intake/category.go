package intake

// Category is the closed set of clinical question categories. It is used both
// to classify already-asked questions (for de-duplication and coverage) and to
// select the next category to probe.
type Category string

const (
	CategoryDuration           Category = "duration"
	CategoryTriggers           Category = "triggers"
	CategoryPain               Category = "pain"
	CategoryTemporal           Category = "temporal"
	CategoryTravel             Category = "travel"
	CategoryAllergies          Category = "allergies"
	CategoryMedications        Category = "medications"
	CategoryPastHistory        Category = "past_history"
	CategoryFamilyHistory      Category = "family_history"
	CategorySocialLifestyle    Category = "social_lifestyle"
	CategoryWomensHealth       Category = "womens_health"
	CategoryFunctionalStatus   Category = "functional_status"
	CategoryAssociatedSymptoms Category = "associated_symptoms"
	CategoryChronicMonitoring  Category = "chronic_monitoring"
	CategoryOther              Category = "other"
)

// CanonicalSequence is the preferred probing order. The policy engine walks it
// after the profile-mandatory categories are exhausted.
var CanonicalSequence = []Category{
	CategoryDuration,
	CategoryTriggers,
	CategoryPain,
	CategoryTemporal,
	CategoryTravel,
	CategoryAllergies,
	CategoryMedications,
	CategoryPastHistory,
	CategoryFamilyHistory,
	CategorySocialLifestyle,
	CategoryWomensHealth,
	CategoryFunctionalStatus,
	CategoryAssociatedSymptoms,
	CategoryChronicMonitoring,
}

// MaxAsks returns how many times a category may be probed in one session.
// Associated symptoms and chronic monitoring cover distinct sub-areas (home
// readings, recent labs, screenings with complications, adherence) and may be
// asked up to three times; everything else at most once.
func MaxAsks(c Category) int {
	switch c {
	case CategoryAssociatedSymptoms, CategoryChronicMonitoring:
		return 3
	default:
		return 1
	}
}

// Classifier maps question text to a category. Implementations must be pure
// and stable: the same text always yields the same category.
type Classifier interface {
	Classify(questionText string) Category
}

type categoryRule struct {
	category Category
	keywords []string
}

// KeywordClassifier classifies by ordered first-match keyword rules over
// normalized text. Rule order is significant: more specific buckets come
// before the broad ones they overlap with.
type KeywordClassifier struct {
	rules []categoryRule
}

// NewKeywordClassifier returns the default rule set.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		rules: []categoryRule{
			{CategoryDuration, []string{"how long", "since when", "duration"}},
			{CategoryTriggers, []string{"trigger", "worsen", "aggrav", "what makes", "factors that make"}},
			{CategoryChronicMonitoring, []string{"blood sugar", "blood pressure reading", "home reading", "monitor", "hba1c", "recent lab", "screening", "complication", "adherence", "as prescribed"}},
			{CategoryWomensHealth, []string{"menstru", "period", "pregnan", "contracept", "obstet", "gyneco", "menopause"}},
			{CategoryTravel, []string{"travel", "endemic", "abroad", "sick contact"}},
			{CategoryAllergies, []string{"allerg", "hives", "sneez", "runny nose"}},
			{CategoryPain, []string{"pain", "scale", "intensity", "sharp", "dull", "burning", "throbbing", "radiat"}},
			{CategoryTemporal, []string{"time of day", "come and go", "constant", "intermittent", "worse in the morning", "worse at night", "pattern over"}},
			{CategoryMedications, []string{"medication", "medicine", "drug", "dose", "frequency", "otc", "remed", "prescription"}},
			{CategoryFamilyHistory, []string{"family", "mother", "father", "heredit", "genetic"}},
			{CategoryPastHistory, []string{"past medical", "history of", "surgery", "hospitalization", "similar episode", "chronic condition", "diagnosed with"}},
			{CategorySocialLifestyle, []string{"smok", "alcohol", "diet", "exercise", "occupation", "your work", "exposure"}},
			{CategoryFunctionalStatus, []string{"daily activit", "assistive", "caregiver", "independent", "functional"}},
			{CategoryAssociatedSymptoms, []string{"other symptom", "associated symptom", "along with", "anything else you have noticed", "weight loss", "palpitation", "nausea"}},
		},
	}
}

// Classify returns the first matching category, or CategoryOther for empty or
// unmatched text. Matching is case and punctuation insensitive.
func (c *KeywordClassifier) Classify(questionText string) Category {
	t := NormalizeQuestion(questionText)
	if t == "" {
		return CategoryOther
	}
	for _, rule := range c.rules {
		for _, k := range rule.keywords {
			if containsKeyword(t, k) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
