package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the read-only patient view used to enrich the analysis context.
type Profile struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	BirthDate          *string   `json:"birthDate,omitempty" db:"birth_date"`
	Gender             *string   `json:"gender,omitempty" db:"gender"`
	Allergies          []string  `json:"allergies,omitempty" db:"allergies"`
	CurrentMedications []string  `json:"currentMedications,omitempty" db:"current_medications"`
	ChronicConditions  []string  `json:"chronicConditions,omitempty" db:"chronic_conditions"`
	MedicalHistory     *string   `json:"medicalHistory,omitempty" db:"medical_history"`
	FamilyHistory      *string   `json:"familyHistory,omitempty" db:"family_history"`
	Notes              *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// ContextBlock renders the profile as the labeled block prepended to the
// analysis context. Only populated fields are included.
func (p *Profile) ContextBlock() string {
	var b strings.Builder
	b.WriteString("=== PATIENT PROFILE ===\n")
	b.WriteString(fmt.Sprintf("Name: %s\n", p.Name))
	if p.BirthDate != nil {
		b.WriteString(fmt.Sprintf("Birth date: %s\n", *p.BirthDate))
	}
	if p.Gender != nil {
		b.WriteString(fmt.Sprintf("Gender: %s\n", *p.Gender))
	}
	if len(p.Allergies) > 0 {
		b.WriteString(fmt.Sprintf("Allergies: %s\n", strings.Join(p.Allergies, ", ")))
	}
	if len(p.CurrentMedications) > 0 {
		b.WriteString(fmt.Sprintf("Current medications: %s\n", strings.Join(p.CurrentMedications, ", ")))
	}
	if len(p.ChronicConditions) > 0 {
		b.WriteString(fmt.Sprintf("Chronic conditions: %s\n", strings.Join(p.ChronicConditions, ", ")))
	}
	if p.MedicalHistory != nil {
		b.WriteString(fmt.Sprintf("Medical history: %s\n", *p.MedicalHistory))
	}
	if p.FamilyHistory != nil {
		b.WriteString(fmt.Sprintf("Family history: %s\n", *p.FamilyHistory))
	}
	if p.Notes != nil {
		b.WriteString(fmt.Sprintf("Notes: %s\n", *p.Notes))
	}
	b.WriteString("=======================\n")
	return b.String()
}
