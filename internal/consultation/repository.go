package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinical-scribe/internal/clinicerr"
)

const consultationColumns = `id, patient_id, patient_name, transcript, summary, anamnesis,
	prescription, suggested_medications, suggested_questions, doctor_notes,
	chat_messages, started_at, ended_at, created_at, updated_at`

type Repository interface {
	Create(ctx context.Context, patientID *uuid.UUID, patientName *string) (*Consultation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	List(ctx context.Context, patientID *uuid.UUID, page, limit int) ([]Consultation, int, error)

	// MergePartial applies a sparse update atomically: only present fields
	// participate in the write. An empty update returns the current record.
	MergePartial(ctx context.Context, id uuid.UUID, update PartialUpdate) (*Consultation, error)

	UpdateTranscript(ctx context.Context, id uuid.UUID, transcript string) (*Consultation, error)
	SetEnded(ctx context.Context, id uuid.UUID, ended bool) (*Consultation, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Create(ctx context.Context, patientID *uuid.UUID, patientName *string) (*Consultation, error) {
	query := `
		INSERT INTO consultations (patient_id, patient_name)
		VALUES ($1, $2)
		RETURNING ` + consultationColumns

	row := r.db.QueryRowContext(ctx, query, patientID, patientName)
	c, err := scanConsultation(row)
	if err != nil {
		return nil, fmt.Errorf("create consultation: %w", err)
	}
	return c, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	c, err := scanConsultation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, clinicerr.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns a light projection (no transcript or analysis bodies) ordered
// by started_at descending, plus the total row count for paging.
func (r *postgresRepo) List(ctx context.Context, patientID *uuid.UUID, page, limit int) ([]Consultation, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	where := ""
	args := []any{}
	if patientID != nil {
		where = " WHERE patient_id = $1"
		args = append(args, *patientID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consultations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count consultations: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, patient_id, patient_name, started_at, ended_at, created_at, updated_at
		FROM consultations%s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()

	var out []Consultation
	for rows.Next() {
		var c Consultation
		var patientID uuid.NullUUID
		var patientName sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&c.ID, &patientID, &patientName, &c.StartedAt, &endedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if patientID.Valid {
			c.PatientID = &patientID.UUID
		}
		if patientName.Valid {
			c.PatientName = &patientName.String
		}
		if endedAt.Valid {
			c.EndedAt = &endedAt.Time
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// MergePartial builds a single UPDATE from the present fields, so a stale
// full-object overwrite can never clobber fields this call does not carry.
func (r *postgresRepo) MergePartial(ctx context.Context, id uuid.UUID, update PartialUpdate) (*Consultation, error) {
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.PatientID.Present {
		if update.PatientID.Null {
			add("patient_id", nil)
		} else {
			add("patient_id", update.PatientID.Value)
		}
	}
	if update.PatientName.Present {
		add("patient_name", nullableString(update.PatientName))
	}
	if update.Transcript.Present {
		add("transcript", nullableString(update.Transcript))
	}
	if update.Summary.Present {
		add("summary", nullableString(update.Summary))
	}
	if update.Anamnesis.Present {
		add("anamnesis", nullableString(update.Anamnesis))
	}
	if update.Prescription.Present {
		add("prescription", nullableString(update.Prescription))
	}
	if update.SuggestedMedications.Present {
		add("suggested_medications", nullableString(update.SuggestedMedications))
	}
	if update.SuggestedQuestions.Present {
		v, err := nullableJSON(update.SuggestedQuestions)
		if err != nil {
			return nil, fmt.Errorf("marshal suggested questions: %w", err)
		}
		add("suggested_questions", v)
	}
	if update.DoctorNotes.Present {
		add("doctor_notes", nullableString(update.DoctorNotes))
	}
	if update.ChatMessages.Present {
		v, err := nullableJSON(update.ChatMessages)
		if err != nil {
			return nil, fmt.Errorf("marshal chat messages: %w", err)
		}
		add("chat_messages", v)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE consultations
		SET %s, updated_at = CURRENT_TIMESTAMP
		WHERE id = $%d
		RETURNING %s`, strings.Join(sets, ", "), len(args), consultationColumns)

	row := r.db.QueryRowContext(ctx, query, args...)
	c, err := scanConsultation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, clinicerr.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *postgresRepo) UpdateTranscript(ctx context.Context, id uuid.UUID, transcript string) (*Consultation, error) {
	query := `
		UPDATE consultations
		SET transcript = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
		RETURNING ` + consultationColumns

	row := r.db.QueryRowContext(ctx, query, transcript, id)
	c, err := scanConsultation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, clinicerr.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// SetEnded stamps or clears ended_at. Stamping an already-finished
// consultation just refreshes the timestamp; clearing an active one is a
// no-op write. Both keep the operation idempotent in effect.
func (r *postgresRepo) SetEnded(ctx context.Context, id uuid.UUID, ended bool) (*Consultation, error) {
	var query string
	if ended {
		query = `
			UPDATE consultations
			SET ended_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
			RETURNING ` + consultationColumns
	} else {
		query = `
			UPDATE consultations
			SET ended_at = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1
			RETURNING ` + consultationColumns
	}

	row := r.db.QueryRowContext(ctx, query, id)
	c, err := scanConsultation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, clinicerr.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func nullableString(f Field[string]) any {
	if f.Null {
		return nil
	}
	return f.Value
}

func nullableJSON[T any](f Field[T]) (any, error) {
	if f.Null {
		return nil, nil
	}
	b, err := json.Marshal(f.Value)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsultation(row rowScanner) (*Consultation, error) {
	var c Consultation
	var patientID uuid.NullUUID
	var patientName, summary, anamnesis, prescription, suggestedMeds, doctorNotes sql.NullString
	var transcript sql.NullString
	var questionsJSON, chatJSON []byte
	var endedAt sql.NullTime
	var startedAt, createdAt, updatedAt time.Time

	err := row.Scan(
		&c.ID,
		&patientID,
		&patientName,
		&transcript,
		&summary,
		&anamnesis,
		&prescription,
		&suggestedMeds,
		&questionsJSON,
		&doctorNotes,
		&chatJSON,
		&startedAt,
		&endedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if patientID.Valid {
		c.PatientID = &patientID.UUID
	}
	if patientName.Valid {
		c.PatientName = &patientName.String
	}
	c.Transcript = transcript.String
	if summary.Valid {
		c.Summary = &summary.String
	}
	if anamnesis.Valid {
		c.Anamnesis = &anamnesis.String
	}
	if prescription.Valid {
		c.Prescription = &prescription.String
	}
	if suggestedMeds.Valid {
		c.SuggestedMedications = &suggestedMeds.String
	}
	if doctorNotes.Valid {
		c.DoctorNotes = &doctorNotes.String
	}
	if len(questionsJSON) > 0 {
		if err := json.Unmarshal(questionsJSON, &c.SuggestedQuestions); err != nil {
			return nil, fmt.Errorf("unmarshal suggested questions: %w", err)
		}
	}
	if len(chatJSON) > 0 {
		if err := json.Unmarshal(chatJSON, &c.ChatMessages); err != nil {
			return nil, fmt.Errorf("unmarshal chat messages: %w", err)
		}
	}
	c.StartedAt = startedAt
	if endedAt.Valid {
		c.EndedAt = &endedAt.Time
	}
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return &c, nil
}
