package consultation

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Field is a tri-state update value: absent (leave the stored value alone),
// explicit null (clear it), or set (overwrite). The three states survive a
// JSON round trip: a missing key leaves the zero Field, "null" marks Null,
// and a concrete value marks Set.
type Field[T any] struct {
	Present bool
	Null    bool
	Value   T
}

// SetField builds a Field carrying a concrete value.
func SetField[T any](v T) Field[T] {
	return Field[T]{Present: true, Value: v}
}

// NullField builds a Field that clears the stored value.
func NullField[T any]() Field[T] {
	return Field[T]{Present: true, Null: true}
}

// UnmarshalJSON is only invoked by encoding/json when the key is present in
// the document, which is exactly the absent/null distinction we need.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Present = true
	if string(data) == "null" {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Present || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// PartialUpdate is a sparse update over the consultation's mutable
// attributes. Absent fields never participate in the write; list fields are
// replaced wholesale when present, never appended to by the merger.
type PartialUpdate struct {
	PatientID            Field[uuid.UUID]     `json:"patientId"`
	PatientName          Field[string]        `json:"patientName"`
	Transcript           Field[string]        `json:"transcript"`
	Summary              Field[string]        `json:"summary"`
	Anamnesis            Field[string]        `json:"anamnesis"`
	Prescription         Field[string]        `json:"prescription"`
	SuggestedMedications Field[string]        `json:"suggestedMedications"`
	SuggestedQuestions   Field[[]string]      `json:"suggestedQuestions"`
	DoctorNotes          Field[string]        `json:"doctorNotes"`
	ChatMessages         Field[[]ChatMessage] `json:"chatMessages"`
}

// Empty reports whether no field participates in the update.
func (u *PartialUpdate) Empty() bool {
	return !u.PatientID.Present &&
		!u.PatientName.Present &&
		!u.Transcript.Present &&
		!u.Summary.Present &&
		!u.Anamnesis.Present &&
		!u.Prescription.Present &&
		!u.SuggestedMedications.Present &&
		!u.SuggestedQuestions.Present &&
		!u.DoctorNotes.Present &&
		!u.ChatMessages.Present
}
