package consultation

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one entry of the in-consultation assistant chat.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Consultation is the central mutable aggregate. Every field except the id
// and the audit timestamps is independently updatable through MergePartial.
// EndedAt == nil means the consultation is active and still accepting chunks.
type Consultation struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	PatientID   *uuid.UUID `json:"patientId,omitempty" db:"patient_id"`
	PatientName *string    `json:"patientName,omitempty" db:"patient_name"`

	// Transcript grows monotonically while the session is active.
	Transcript string `json:"transcript" db:"transcript"`

	// Cascade output.
	Summary              *string  `json:"summary,omitempty" db:"summary"`
	Anamnesis            *string  `json:"anamnesis,omitempty" db:"anamnesis"`
	Prescription         *string  `json:"prescription,omitempty" db:"prescription"`
	SuggestedMedications *string  `json:"suggestedMedications,omitempty" db:"suggested_medications"`
	SuggestedQuestions   []string `json:"suggestedQuestions,omitempty" db:"suggested_questions"`

	// Doctor-authored, never touched by the cascade.
	DoctorNotes *string `json:"doctorNotes,omitempty" db:"doctor_notes"`

	ChatMessages []ChatMessage `json:"chatMessages,omitempty" db:"chat_messages"`

	StartedAt time.Time  `json:"startedAt" db:"started_at"`
	EndedAt   *time.Time `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// Active reports whether the consultation still accepts chunk input.
func (c *Consultation) Active() bool {
	return c.EndedAt == nil
}

// CascadeResult is the tuple produced by one full cascade run. It is never
// persisted directly; it is projected into a PartialUpdate.
//
// Prescription holds only medications explicitly mentioned as prescribed in
// the transcript. SuggestedMedications holds AI-originated recommendations.
// The two are independent and must never be conflated.
type CascadeResult struct {
	Summary              string   `json:"summary"`
	Anamnesis            string   `json:"anamnesis"`
	Prescription         *string  `json:"prescription"`
	SuggestedMedications *string  `json:"suggestedMedications"`
	SuggestedQuestions   []string `json:"suggestedQuestions"`
}

// ToPartialUpdate projects the cascade result into a sparse update. All five
// fields are written, including explicit nulls for the two medication fields,
// so a re-run that no longer finds a prescription clears the stale one.
func (r *CascadeResult) ToPartialUpdate() PartialUpdate {
	u := PartialUpdate{
		Summary:            SetField(r.Summary),
		Anamnesis:          SetField(r.Anamnesis),
		SuggestedQuestions: SetField(r.SuggestedQuestions),
	}
	if r.Prescription != nil {
		u.Prescription = SetField(*r.Prescription)
	} else {
		u.Prescription = NullField[string]()
	}
	if r.SuggestedMedications != nil {
		u.SuggestedMedications = SetField(*r.SuggestedMedications)
	} else {
		u.SuggestedMedications = NullField[string]()
	}
	return u
}
