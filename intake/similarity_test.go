package intake

import "testing"

func TestNormalizeQuestion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  How long have you had this?  ", "how long have you had this"},
		{"Could you tell me about your pain?", "tell me about your pain"},
		{"Please describe the symptoms!!", "describe the symptoms"},
		{"What   makes it\nworse?", "what makes it worse"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeQuestion(c.in); got != c.want {
			t.Errorf("NormalizeQuestion(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSimilarityRatio(t *testing.T) {
	if got := SimilarityRatio("abc", "abc"); got != 1.0 {
		t.Errorf("identical strings: %v", got)
	}
	if got := SimilarityRatio("", ""); got != 1.0 {
		t.Errorf("two empty strings: %v", got)
	}
	if got := SimilarityRatio("abc", ""); got != 0.0 {
		t.Errorf("one empty string: %v", got)
	}
	if got := SimilarityRatio("aaa", "bbb"); got != 0.0 {
		t.Errorf("disjoint strings: %v", got)
	}

	near := SimilarityRatio(
		"how long have you had these symptoms",
		"how long have you had those symptoms",
	)
	if near < 0.9 {
		t.Errorf("near-identical questions ratio = %v, want >= 0.9", near)
	}

	far := SimilarityRatio(
		"how long have you had these symptoms",
		"do you smoke or drink alcohol",
	)
	if far >= 0.85 {
		t.Errorf("unrelated questions ratio = %v, want < 0.85", far)
	}
}

func TestIsDuplicateQuestion(t *testing.T) {
	history := []string{
		"How long have you had these symptoms, and when did they start?",
		"What medications are you currently taking?",
	}

	if !IsDuplicateQuestion("how long have you had these symptoms, and when did they start", history, 0.85) {
		t.Error("normalized-equal question not flagged")
	}
	if !IsDuplicateQuestion("Could you tell me what medications are you currently taking?", history, 0.85) {
		t.Error("politeness-prefixed near-duplicate not flagged")
	}
	if IsDuplicateQuestion("Does anyone in your family have a similar condition?", history, 0.85) {
		t.Error("novel question flagged as duplicate")
	}
}
