package intake

import (
	"strings"

	"github.com/clinicai/server/domain/entities"
)

// ConditionProfile captures which high-level condition types the complaint and
// dialogue suggest. A patient can satisfy several flags at once; downstream
// policy handles the union.
type ConditionProfile struct {
	IsAcute               bool
	IsChronic             bool
	IsPainRelated         bool
	IsWomensHealthRelated bool
	IsAllergyRelated      bool
	IsTravelRelated       bool
}

// Analyzer derives a ConditionProfile from the dialogue so far. Injectable so
// the keyword heuristic can later be replaced without touching the engine.
type Analyzer interface {
	Analyze(chiefComplaint, dialogueText string, patient entities.PatientContext) ConditionProfile
}

var (
	acuteKeywords = []string{
		"fever", "cough", "cold", "flu", "sore throat", "infection", "injury",
		"sprain", "fracture", "vomit", "diarr", "cut", "burn",
	}
	chronicKeywords = []string{
		"diabetes", "diabetic", "hypertension", "blood pressure", "asthma",
		"thyroid", "heart disease", "heart failure", "cancer", "copd", "ckd",
		"kidney disease", "arthritis", "autoimmune", "lupus", "follow up",
	}
	painKeywords = []string{
		"pain", "ache", "headache", "migraine", "cramp", "sore back",
		"joint", "stiff",
	}
	womensHealthKeywords = []string{
		"menstru", "period", "pregnan", "menopause", "pcos", "gyneco",
		"obstet", "discharge", "contracept",
	}
	allergyKeywords = []string{
		"allerg", "rash", "hives", "wheeze", "swelling", "sneez", "itch",
		"runny nose",
	}
	// Infection-suggestive terms that make recent travel clinically relevant.
	travelTriggerKeywords = []string{
		"fever", "diarr", "vomit", "stomach", "abdom", "cough", "breath",
		"rash", "jaundice", "malaria", "dengue", "typhoid", "hepatitis",
		"chikungunya", "tuberculosis", "covid",
	}
	// Subset of travel triggers pointing at gastrointestinal exposure.
	travelGIKeywords = []string{"diarr", "vomit", "stomach", "abdom"}
)

// KeywordAnalyzer is the default heuristic ConditionProfile implementation.
type KeywordAnalyzer struct{}

// NewKeywordAnalyzer returns the keyword-based analyzer.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{}
}

func matchesAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Analyze computes the profile fresh from complaint plus accumulated answers.
func (a *KeywordAnalyzer) Analyze(chiefComplaint, dialogueText string, patient entities.PatientContext) ConditionProfile {
	complaint := strings.ToLower(strings.TrimSpace(chiefComplaint))
	combined := complaint + " " + strings.ToLower(dialogueText)

	chronic := matchesAny(combined, chronicKeywords)
	return ConditionProfile{
		// Acute requires acute keywords in the complaint itself and no
		// chronic signal anywhere; "diabetes follow up with fever" is chronic.
		IsAcute:               matchesAny(complaint, acuteKeywords) && !chronic,
		IsChronic:             chronic,
		IsPainRelated:         matchesAny(combined, painKeywords),
		IsWomensHealthRelated: matchesAny(combined, womensHealthKeywords),
		IsAllergyRelated:      matchesAny(combined, allergyKeywords),
		IsTravelRelated:       patient.RecentlyTravelled && matchesAny(combined, travelTriggerKeywords),
	}
}

// GISuggestive reports whether the dialogue points at gastrointestinal
// exposure, which selects the GI variant of the travel question.
func GISuggestive(text string) bool {
	return matchesAny(strings.ToLower(text), travelGIKeywords)
}

// eligibilityRules is the declarative gating table: a category missing from
// the table is always eligible; a present entry must return true for the
// category to be askable. Rule changes are data edits here, not new branches
// in the engine.
var eligibilityRules = map[Category]func(ConditionProfile, entities.PatientContext) bool{
	CategoryFamilyHistory: func(p ConditionProfile, pt entities.PatientContext) bool {
		return p.IsChronic || (p.IsWomensHealthRelated && pt.Gender == entities.GenderFemale)
	},
	CategoryChronicMonitoring: func(p ConditionProfile, _ entities.PatientContext) bool {
		return p.IsChronic
	},
	CategoryTravel: func(p ConditionProfile, _ entities.PatientContext) bool {
		return p.IsTravelRelated
	},
	CategoryAllergies: func(p ConditionProfile, _ entities.PatientContext) bool {
		return p.IsAllergyRelated
	},
	CategoryPain: func(p ConditionProfile, _ entities.PatientContext) bool {
		return p.IsPainRelated
	},
	CategoryWomensHealth: func(p ConditionProfile, pt entities.PatientContext) bool {
		return p.IsWomensHealthRelated && pt.Gender == entities.GenderFemale
	},
}

// Eligible reports whether a category may be asked for this profile/patient.
func Eligible(c Category, p ConditionProfile, patient entities.PatientContext) bool {
	rule, ok := eligibilityRules[c]
	if !ok {
		return true
	}
	return rule(p, patient)
}

// MandatoryCategories returns the high-priority categories that must be
// covered before the session may stop early. They are probed first, in this
// order.
func MandatoryCategories(p ConditionProfile, patient entities.PatientContext) []Category {
	mandatory := []Category{CategoryDuration, CategoryMedications}
	if p.IsPainRelated {
		mandatory = append(mandatory, CategoryPain)
	}
	if p.IsTravelRelated {
		mandatory = append(mandatory, CategoryTravel)
	}
	if p.IsAllergyRelated {
		mandatory = append(mandatory, CategoryAllergies)
	}
	if p.IsChronic {
		mandatory = append(mandatory, CategoryChronicMonitoring, CategoryFamilyHistory)
	}
	if p.IsWomensHealthRelated && patient.Gender == entities.GenderFemale {
		mandatory = append(mandatory, CategoryWomensHealth)
	}
	return mandatory
}

// ExpectedCategories builds the dynamic coverage set for the completion
// estimate: only categories relevant to the detected conditions count.
func ExpectedCategories(p ConditionProfile, patient entities.PatientContext) map[Category]bool {
	expected := make(map[Category]bool)
	for _, c := range CanonicalSequence {
		if Eligible(c, p, patient) {
			expected[c] = true
		}
	}
	return expected
}

// SubstitutePastEpisodes reports whether the past-history probe should be
// phrased as "past similar episodes" instead of a chronic-history review —
// used for acute or pain-only presentations where family history is gated off.
func SubstitutePastEpisodes(p ConditionProfile) bool {
	return (p.IsAcute || p.IsPainRelated) && !p.IsChronic
}
