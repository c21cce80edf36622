package cascade

import (
	"strings"

	"clinical-scribe/internal/patient"
)

// BuildContext composes the text every stage of one cascade run sees: the
// patient profile block (if any) prepended to the transcript, the doctor's
// notes (if any) appended as a labeled block. The composed context is passed
// unchanged into all four stages.
func BuildContext(transcript, doctorNotes string, profile *patient.Profile) string {
	var b strings.Builder
	if profile != nil {
		b.WriteString(profile.ContextBlock())
	}
	b.WriteString(transcript)
	if notes := strings.TrimSpace(doctorNotes); notes != "" {
		b.WriteString("\n\nDOCTOR'S NOTES:\n")
		b.WriteString(notes)
	}
	return b.String()
}
