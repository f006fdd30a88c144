package entities

import "strings"

// Gender as reported at intake. Only used for category gating (women's health
// questions are never asked for male patients), not for anything clinical.
type Gender string

const (
	GenderMale        Gender = "male"
	GenderFemale      Gender = "female"
	GenderOther       Gender = "other"
	GenderUnspecified Gender = "unspecified"
)

// ParseGender normalizes freeform gender input to the closed enum.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	case "other":
		return GenderOther
	default:
		return GenderUnspecified
	}
}

// PatientContext is the read-only demographic input to the dialogue policy.
type PatientContext struct {
	Gender            Gender `json:"gender" bson:"gender"`
	RecentlyTravelled bool   `json:"recently_travelled" bson:"recently_travelled"`
	AgeBand           *int   `json:"age_band,omitempty" bson:"age_band,omitempty"`
}
