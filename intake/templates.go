package intake

// Fixed dialogue anchors. These are never model-generated: the opening prompt
// is identical for every session and the closing question is asked verbatim,
// at most once, as the last question.
const (
	FirstQuestionText   = "Why have you come in today? What is the main concern you want help with?"
	ClosingQuestionText = "Have we missed anything important about your health, or any other concerns you want the doctor to know?"
)

// Travel questions are hard overrides with symptom-specific phrasing, asked
// ahead of any model-driven question when recent travel is clinically relevant.
const (
	TravelQuestionGI = "Have you travelled in the last 1-3 months? If yes, where did you go, did you eat street food or raw or undercooked foods, drink untreated water, or did others with you have similar stomach symptoms?"

	TravelQuestionGeneral = "Have you travelled domestically or internationally in the last 1-3 months? If yes, where did you go, was it a known infectious area, and did you have any sick contacts?"
)

// PastEpisodesQuestion replaces the chronic past-history review for acute or
// pain-only presentations.
const PastEpisodesQuestion = "Have you had similar episodes in the past? If so, when did they happen and what helped?"

// fallbackTemplates provide deterministic questions when the language model is
// unavailable or keeps producing duplicates. Multi-ask categories list one
// template per sub-area, consumed in order.
var fallbackTemplates = map[Category][]string{
	CategoryDuration: {
		"How long have you had these symptoms, and when did they start?",
	},
	CategoryTriggers: {
		"Have you noticed anything that triggers your symptoms or makes them worse, such as food, exertion, or stress?",
	},
	CategoryPain: {
		"Where exactly is the pain, how intense is it on a scale of 0 to 10, and what does it feel like, for example sharp, dull, or burning?",
	},
	CategoryTemporal: {
		"Do your symptoms follow a pattern over the day, are they constant, or do they come and go?",
	},
	CategoryTravel: {
		TravelQuestionGeneral,
	},
	CategoryAllergies: {
		"Do you have any known allergies, or have you noticed hives, swelling, sneezing, or a runny nose recently?",
	},
	CategoryMedications: {
		"What medications or remedies are you currently taking, including prescriptions and over-the-counter drugs, with dose and frequency?",
	},
	CategoryPastHistory: {
		"Do you have any past medical history, such as chronic conditions, surgeries, or hospitalizations?",
	},
	CategoryFamilyHistory: {
		"Does anyone in your family, such as your mother or father, have a similar or related condition?",
	},
	CategorySocialLifestyle: {
		"Do you smoke or drink alcohol, and can you tell me briefly about your diet, exercise, and occupation?",
	},
	CategoryWomensHealth: {
		"When was your last menstrual period, and is there any chance you could be pregnant?",
	},
	CategoryFunctionalStatus: {
		"Are your symptoms affecting your daily activities, or do you need help from a caregiver for everyday tasks?",
	},
	CategoryAssociatedSymptoms: {
		"Have you noticed any other symptoms along with your main concern, such as fever, weight loss, or nausea?",
		"Along with this, have you noticed any changes in appetite, sleep, or energy levels?",
		"Are there any other symptoms you have noticed recently, even ones that seem unrelated?",
	},
	CategoryChronicMonitoring: {
		"Do you monitor your condition at home, for example blood sugar or blood pressure readings, and what have recent readings looked like?",
		"Have you had any recent lab tests such as HbA1c or kidney function, and do you know the results?",
		"Have you kept up with recommended screenings, and have you noticed any complications of your condition?",
		"Are you taking your medications as prescribed, or do you sometimes miss doses?",
	},
}

// FallbackQuestion returns the askIndex-th template for a category (0-based),
// or empty when the category has no more sub-area templates.
func FallbackQuestion(c Category, askIndex int, substitutePastEpisodes bool) string {
	if c == CategoryPastHistory && substitutePastEpisodes {
		if askIndex == 0 {
			return PastEpisodesQuestion
		}
		return ""
	}
	templates := fallbackTemplates[c]
	if askIndex < 0 || askIndex >= len(templates) {
		return ""
	}
	return templates[askIndex]
}
