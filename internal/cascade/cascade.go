// Package cascade runs the four-stage clinical analysis pipeline:
// summary -> anamnesis -> prescription/suggested medications -> suggested
// questions. The stages are strictly sequential because each one consumes
// the structured output of the previous ones; the first failing stage aborts
// the rest of the run so a partial cascade can never masquerade as a
// complete one. A run is pure given the same inputs and may be retried
// wholesale.
package cascade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"clinical-scribe/internal/clinicerr"
	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/patient"
)

// Generator is the structured text generation capability a stage calls.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Stage names, used in errors so operators can tell which stage failed.
const (
	StageSummary      = "summary generation"
	StageAnamnesis    = "anamnesis extraction"
	StagePrescription = "prescription extraction"
	StageQuestions    = "question generation"
)

// Runner drives one cascade over a composed analysis context.
type Runner struct {
	gen Generator
	log zerolog.Logger
}

func NewRunner(gen Generator, log zerolog.Logger) *Runner {
	return &Runner{
		gen: gen,
		log: log.With().Str("component", "cascade").Logger(),
	}
}

// Run composes the analysis context and executes all four stages over it.
// It either returns a complete result or the error of the first failing
// stage; it never fills in empty values for stages that did not run.
func (r *Runner) Run(ctx context.Context, transcript, doctorNotes string, profile *patient.Profile) (*consultation.CascadeResult, error) {
	fullContext := BuildContext(transcript, doctorNotes, profile)

	summary, err := r.runSummary(ctx, fullContext)
	if err != nil {
		return nil, err
	}

	anamnesis, err := r.runAnamnesis(ctx, fullContext, summary)
	if err != nil {
		return nil, err
	}

	prescription, suggestedMeds, err := r.runPrescription(ctx, fullContext, summary, anamnesis)
	if err != nil {
		return nil, err
	}

	questions, err := r.runQuestions(ctx, fullContext, summary, anamnesis, prescription)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Int("context_chars", len(fullContext)).
		Bool("has_prescription", prescription != nil).
		Bool("has_suggested_medications", suggestedMeds != nil).
		Int("suggested_questions", len(questions)).
		Msg("cascade completed")

	return &consultation.CascadeResult{
		Summary:              summary,
		Anamnesis:            anamnesis,
		Prescription:         prescription,
		SuggestedMedications: suggestedMeds,
		SuggestedQuestions:   questions,
	}, nil
}

func (r *Runner) runSummary(ctx context.Context, fullContext string) (string, error) {
	system := `You are a medical assistant specialized in concise, objective clinical summaries.
Analyze the consultation transcript and produce a clear, structured summary.
Return readable formatted text, not nested JSON.`

	user := fmt.Sprintf(`Context as JSON:
{"transcript": %s}

Produce a concise, well formatted clinical summary. Reply in JSON with a single key "summary" holding readable text.`, jsonString(fullContext))

	var out struct {
		Summary string `json:"summary"`
	}
	if err := r.generate(ctx, StageSummary, system, user, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

func (r *Runner) runAnamnesis(ctx context.Context, fullContext, summary string) (string, error) {
	system := `You are a medical assistant specialized in structuring clinical anamneses.
Analyze the transcript and summary and produce a complete, structured anamnesis.
Return readable formatted text organized in clearly titled sections separated by blank lines.`

	user := fmt.Sprintf(`Context as JSON:
{"transcript": %s, "summary": %s}

Produce a structured anamnesis. Reply in JSON with a single key "anamnesis" holding readable text with exactly these sections, each starting with its title and a colon:

Chief Complaint:
History of Present Illness:
Physical Exam:
Diagnostic Hypothesis:
Conduct:

If the transcript has no information for a section, write "Not available in transcript" under that section instead of omitting it.`, jsonString(fullContext), jsonString(summary))

	var out struct {
		Anamnesis string `json:"anamnesis"`
	}
	if err := r.generate(ctx, StageAnamnesis, system, user, &out); err != nil {
		return "", err
	}
	return out.Anamnesis, nil
}

func (r *Runner) runPrescription(ctx context.Context, fullContext, summary, anamnesis string) (*string, *string, error) {
	system := `You are a medical assistant that identifies prescriptions and suggests medications. Your task has two independent parts:
1. IDENTIFY prescriptions mentioned in the transcript (what the physician actually prescribed).
2. SUGGEST medications based on the clinical context, even if they were never mentioned.

Rules:
- "prescription": only medications, dosages and instructions that were explicitly mentioned or prescribed in the transcript. If none, return null.
- "suggestedMedications": medications you recommend from the clinical analysis, with suggested dosages and a brief rationale. If none are warranted, return null.
Never mix the two fields.`

	user := fmt.Sprintf(`Context as JSON:
{"transcript": %s, "summary": %s, "anamnesis": %s}

Reply in JSON with two keys:
1. "prescription": prescriptions MENTIONED in the transcript (or null)
2. "suggestedMedications": medications SUGGESTED from the clinical context (or null)
Both must be readable formatted text, not nested JSON.`, jsonString(fullContext), jsonString(summary), jsonString(anamnesis))

	var out struct {
		Prescription         *string `json:"prescription"`
		SuggestedMedications *string `json:"suggestedMedications"`
	}
	if err := r.generate(ctx, StagePrescription, system, user, &out); err != nil {
		return nil, nil, err
	}
	return emptyToNil(out.Prescription), emptyToNil(out.SuggestedMedications), nil
}

func (r *Runner) runQuestions(ctx context.Context, fullContext, summary, anamnesis string, prescription *string) ([]string, error) {
	system := `You are a medical assistant that suggests relevant clinical questions.
Analyze the full consultation context and suggest 2 to 4 questions the physician should ask next to deepen the diagnosis or clarify vague points.`

	presc := "null"
	if prescription != nil {
		presc = jsonString(*prescription)
	}
	user := fmt.Sprintf(`Context as JSON:
{"transcript": %s, "summary": %s, "anamnesis": %s, "prescription": %s}

Reply in JSON with a single key "suggestedQuestions" holding an array of 2 to 4 question strings.`, jsonString(fullContext), jsonString(summary), jsonString(anamnesis), presc)

	var out struct {
		SuggestedQuestions []string `json:"suggestedQuestions"`
	}
	if err := r.generate(ctx, StageQuestions, system, user, &out); err != nil {
		return nil, err
	}
	if out.SuggestedQuestions == nil {
		out.SuggestedQuestions = []string{}
	}
	return out.SuggestedQuestions, nil
}

// generate calls the capability and decodes the stage's JSON payload,
// translating failures into stage-tagged errors.
func (r *Runner) generate(ctx context.Context, stage, system, user string, out any) error {
	raw, err := r.gen.Generate(ctx, system, user)
	if err != nil {
		return &clinicerr.CapabilityError{Stage: stage, Err: err}
	}
	payload, ok := extractJSON(raw)
	if !ok {
		r.log.Error().Str("stage", stage).Str("raw", truncate(raw, 500)).Msg("no JSON object in model output")
		return &clinicerr.MalformedResponseError{
			Stage: stage,
			Raw:   raw,
			Err:   fmt.Errorf("no JSON object in model output"),
		}
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		r.log.Error().Str("stage", stage).Err(err).Str("raw", truncate(raw, 500)).Msg("undecodable stage payload")
		return &clinicerr.MalformedResponseError{Stage: stage, Raw: raw, Err: err}
	}
	return nil
}

// extractJSON pulls the outermost {...} object out of model output, which may
// wrap it in prose or code fences.
func extractJSON(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
