package patient

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"clinical-scribe/internal/clinicerr"
)

// Repository is the read-only lookup used to enrich the analysis context.
// Patient CRUD lives elsewhere.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	query := `
		SELECT id, name, birth_date, gender, allergies, current_medications,
			chronic_conditions, medical_history, family_history, notes,
			created_at, updated_at
		FROM patients WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var p Profile
	var birthDate, gender, medicalHistory, familyHistory, notes sql.NullString
	var allergiesJSON, medicationsJSON, conditionsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&birthDate,
		&gender,
		&allergiesJSON,
		&medicationsJSON,
		&conditionsJSON,
		&medicalHistory,
		&familyHistory,
		&notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, clinicerr.ErrNotFound
		}
		return nil, err
	}

	if birthDate.Valid {
		p.BirthDate = &birthDate.String
	}
	if gender.Valid {
		p.Gender = &gender.String
	}
	if medicalHistory.Valid {
		p.MedicalHistory = &medicalHistory.String
	}
	if familyHistory.Valid {
		p.FamilyHistory = &familyHistory.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	for _, col := range []struct {
		raw  []byte
		dest *[]string
		name string
	}{
		{allergiesJSON, &p.Allergies, "allergies"},
		{medicationsJSON, &p.CurrentMedications, "current_medications"},
		{conditionsJSON, &p.ChronicConditions, "chronic_conditions"},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", col.name, err)
		}
	}

	return &p, nil
}
