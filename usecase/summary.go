package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/clinicai/server/domain/entities"
	"github.com/clinicai/server/domain/repositories"
)

// Section order for the pre-visit note. A section is included only when the
// model produced content for it; empty sections are dropped afterwards.
var previsitSections = []string{
	"Chief Complaint",
	"History of Present Illness",
	"Pain Assessment",
	"Travel History",
	"Allergies",
	"Medications and Remedies Used",
	"Past Medical History",
	"Family History",
	"Social History",
	"Gynecologic/Obstetric History",
	"Functional Status",
	"Key Clinical Points",
}

var (
	fencedJSON  = regexp.MustCompile("(?is)```json\\s*([\\s\\S]*?)\\s*```")
	fencedAny   = regexp.MustCompile("(?s)```\\s*([\\s\\S]*?)\\s*```")
	placeholder = regexp.MustCompile(`(?i)\[\s*insert[^\]]*\]`)
)

// SummaryService turns a finished intake transcript (and, post-visit, the
// consultation transcript plus SOAP note) into clinical notes. Prose comes
// from the language model; section presence, placeholder stripping and
// fallbacks are owned here.
type SummaryService struct {
	llm    repositories.LanguageModel
	logger *zap.Logger
}

// NewSummaryService creates a summarizer.
func NewSummaryService(llm repositories.LanguageModel, logger *zap.Logger) *SummaryService {
	return &SummaryService{llm: llm, logger: logger}
}

// GeneratePreVisit produces the pre-visit note from the intake transcript.
// It never returns an error: on collaborator failure the deterministic
// fallback summary is returned instead.
func (s *SummaryService) GeneratePreVisit(ctx context.Context, visit *entities.Visit) (string, map[string]interface{}) {
	prompt := s.buildPreVisitPrompt(visit)
	response, err := s.llm.Complete(ctx, []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "You are a clinical assistant generating pre-visit summaries. Focus on accuracy, completeness, and clinical relevance. Do not make diagnoses."},
		{Role: repositories.UserRole, Content: prompt},
	}, 2000, 0.3)
	if err != nil {
		s.logger.Warn("pre-visit summary generation failed, using fallback",
			zap.String("visit_id", visit.ID),
			zap.Error(err))
		return s.fallbackSummary(visit)
	}

	summary, structured := normalizeSummaryResult(parseSummaryResponse(response))
	summary = cleanSummary(summary)
	if strings.TrimSpace(summary) == "" {
		return s.fallbackSummary(visit)
	}
	return summary, structured
}

// GenerateSOAP produces a SOAP note from the consultation transcript. Unlike
// the summaries there is no deterministic fallback; the worker retries.
func (s *SummaryService) GenerateSOAP(ctx context.Context, visit *entities.Visit) (string, error) {
	if visit.Transcription == nil || strings.TrimSpace(visit.Transcription.Transcript) == "" {
		return "", fmt.Errorf("visit %s has no transcript", visit.ID)
	}
	prompt := fmt.Sprintf(
		"Write a SOAP note (Subjective, Objective, Assessment, Plan) from this consultation transcript. Use markdown headings and bullet lists. Do not invent findings.\n\nTranscript:\n%s",
		visit.Transcription.Transcript)
	note, err := s.llm.Complete(ctx, []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "You are a clinical documentation assistant. Produce structured SOAP notes only from stated content."},
		{Role: repositories.UserRole, Content: prompt},
	}, 2000, 0.2)
	if err != nil {
		return "", fmt.Errorf("soap generation failed: %w", err)
	}
	note = cleanSummary(note)
	if strings.TrimSpace(note) == "" {
		return "", fmt.Errorf("soap generation returned empty note")
	}
	return note, nil
}

// GeneratePostVisit combines intake, transcript and SOAP note into the
// post-visit summary. Falls back deterministically like GeneratePreVisit.
func (s *SummaryService) GeneratePostVisit(ctx context.Context, visit *entities.Visit) (string, map[string]interface{}) {
	var input strings.Builder
	input.WriteString("Intake transcript:\n")
	input.WriteString(formatTranscript(visit))
	if visit.SOAPNote != "" {
		input.WriteString("\n\nSOAP note:\n")
		input.WriteString(visit.SOAPNote)
	}
	prompt := fmt.Sprintf(`Generate a concise post-visit summary for the treating doctor.

Rules:
- Output in MARKDOWN with section headings and bullet lists only.
- Clinical, neutral tone; no diagnosis beyond what the SOAP note states.
- Include a section only if information exists.
- Remove duplicate information.

Return ONLY a fenced json block of the form:
`+"```json\n{\n  \"summary\": \"<markdown>\",\n  \"structured_data\": {\"chief_complaint\": \"...\", \"key_findings\": [\"...\"]}\n}\n```"+`

%s`, input.String())

	response, err := s.llm.Complete(ctx, []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "You are a clinical assistant generating post-visit summaries. Do not make new diagnoses."},
		{Role: repositories.UserRole, Content: prompt},
	}, 2000, 0.3)
	if err != nil {
		s.logger.Warn("post-visit summary generation failed, using fallback",
			zap.String("visit_id", visit.ID),
			zap.Error(err))
		return s.fallbackSummary(visit)
	}
	summary, structured := normalizeSummaryResult(parseSummaryResponse(response))
	summary = cleanSummary(summary)
	if strings.TrimSpace(summary) == "" {
		return s.fallbackSummary(visit)
	}
	return summary, structured
}

func (s *SummaryService) buildPreVisitPrompt(visit *entities.Visit) string {
	var b strings.Builder
	b.WriteString("Generate a concise pre-visit summary.\n\n")
	fmt.Fprintf(&b, "Patient: gender=%s, recently_travelled=%t\n", visit.Patient.Gender, visit.Patient.RecentlyTravelled)
	if visit.Patient.AgeBand != nil {
		fmt.Fprintf(&b, "Age band: %d\n", *visit.Patient.AgeBand)
	}
	fmt.Fprintf(&b, "Chief complaint: %s\n\n", visit.Intake.ChiefComplaint)
	b.WriteString("Intake responses:\n")
	b.WriteString(formatTranscript(visit))
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Output in MARKDOWN with section headings and bullet lists only (no paragraphs).\n")
	b.WriteString("- Every line starts with \"- \".\n")
	b.WriteString("- Length: 180-220 words.\n")
	b.WriteString("- Clinical, neutral tone; no diagnosis.\n")
	b.WriteString("- Include a section only if information exists (explicit negatives like no travel or no allergies are information).\n")
	b.WriteString("- Gynecologic/Obstetric only if the patient is female.\n")
	b.WriteString("- Travel History only if recently_travelled is true.\n")
	b.WriteString("- Remove duplicate information.\n\n")
	b.WriteString("Section order:\n")
	for i, section := range previsitSections {
		fmt.Fprintf(&b, "%d) %s\n", i+1, section)
	}
	b.WriteString("\nReturn ONLY a fenced json block:\n")
	b.WriteString("```json\n{\n  \"summary\": \"<markdown with headings and bullet points>\",\n  \"structured_data\": {\"chief_complaint\": \"...\", \"key_findings\": [\"...\"]}\n}\n```\n")
	b.WriteString("Do not add any text before or after it.")
	return b.String()
}

func formatTranscript(visit *entities.Visit) string {
	var b strings.Builder
	for _, qa := range visit.Intake.QuestionsAsked {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", qa.Question, qa.Answer)
	}
	return b.String()
}

// fallbackSummary is deterministic and built only from already-stored fields.
func (s *SummaryService) fallbackSummary(visit *entities.Visit) (string, map[string]interface{}) {
	complaint := visit.Intake.ChiefComplaint
	if complaint == "" {
		complaint = "N/A"
	}
	summary := fmt.Sprintf("## Chief Complaint\n- %s\n\n## Key Clinical Points\n- See intake responses (%d answers recorded).",
		complaint, visit.Intake.QuestionCount())
	return summary, map[string]interface{}{
		"chief_complaint": complaint,
		"key_findings":    []string{"See intake responses"},
	}
}

// parseSummaryResponse extracts a JSON object from model output, preferring a
// fenced json block, then any fenced block, then the first-to-last brace
// substring, else wraps the raw text.
func parseSummaryResponse(response string) map[string]interface{} {
	text := strings.TrimSpace(response)

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if parsed := tryParseJSON(m[1]); parsed != nil {
			return parsed
		}
	}
	if m := fencedAny.FindStringSubmatch(text); m != nil {
		if parsed := tryParseJSON(m[1]); parsed != nil {
			return parsed
		}
	}
	if first, last := strings.Index(text, "{"), strings.LastIndex(text, "}"); first != -1 && last > first {
		if parsed := tryParseJSON(text[first : last+1]); parsed != nil {
			return parsed
		}
	}
	return map[string]interface{}{
		"summary": text,
		"structured_data": map[string]interface{}{
			"chief_complaint": "See summary",
			"key_findings":    []interface{}{"See summary"},
		},
	}
}

func tryParseJSON(candidate string) map[string]interface{} {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &parsed); err != nil {
		return nil
	}
	return parsed
}

// normalizeSummaryResult guarantees the summary/structured_data shape with
// sane defaults, tolerating key variants the model sometimes produces.
func normalizeSummaryResult(result map[string]interface{}) (string, map[string]interface{}) {
	summary := firstString(result, "summary", "markdown", "content")

	var structured map[string]interface{}
	for _, key := range []string{"structured_data", "structuredData", "data"} {
		if m, ok := result[key].(map[string]interface{}); ok {
			structured = m
			break
		}
	}
	if structured == nil {
		structured = map[string]interface{}{}
	}
	if _, ok := structured["chief_complaint"]; !ok {
		structured["chief_complaint"] = "See summary"
	}
	if _, ok := structured["key_findings"]; !ok {
		structured["key_findings"] = []interface{}{"See summary"}
	}
	return summary, structured
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// cleanSummary strips placeholder markers the model sometimes leaves behind
// and drops any section heading whose body ended up empty.
func cleanSummary(md string) string {
	md = placeholder.ReplaceAllString(md, "")

	lines := strings.Split(md, "\n")
	var out []string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		if !isHeading(line) {
			out = append(out, line)
			continue
		}
		// Keep the heading only if a non-empty body line follows before the
		// next heading.
		hasBody := false
		for j := i + 1; j < len(lines); j++ {
			next := strings.TrimSpace(lines[j])
			if isHeading(next) {
				break
			}
			if next != "" && strings.Trim(next, "- ") != "" {
				hasBody = true
				break
			}
		}
		if hasBody {
			out = append(out, line)
		} else {
			// Skip the heading and any blank filler after it.
			for i+1 < len(lines) && strings.TrimSpace(lines[i+1]) == "" {
				i++
			}
		}
	}
	cleaned := strings.Join(out, "\n")
	cleaned = regexp.MustCompile(`\n{3,}`).ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

func isHeading(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
