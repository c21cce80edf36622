package consultation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinical-scribe/internal/clinicerr"
	"clinical-scribe/internal/patient"
)

// Capability interfaces are declared here, consumer-side, to decouple the
// service from the concrete adapter/cascade/agent implementations.

// ChunkAdapter accumulates audio/text chunks into a running transcript.
type ChunkAdapter interface {
	ProcessAudioChunk(ctx context.Context, consultationID string, audio []byte, format string) (string, error)
	ProcessTextChunk(ctx context.Context, consultationID, text string) (string, error)
	Transcript(ctx context.Context, consultationID string) (string, error)
	Seed(ctx context.Context, consultationID, transcript string) error
	Reset(ctx context.Context, consultationID string) error
}

// CascadeRunner runs the four-stage analysis over a transcript.
type CascadeRunner interface {
	Run(ctx context.Context, transcript, doctorNotes string, profile *patient.Profile) (*CascadeResult, error)
}

// TriggerPolicy decides when transcript growth warrants a new cascade run.
type TriggerPolicy interface {
	ShouldTrigger(consultationID string, currentLength int) bool
	Reset(consultationID string)
}

// ChatClient answers free-form questions over a prepared context.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Service interface {
	StartRecording(ctx context.Context, patientID *uuid.UUID, anonymousName *string) (*Consultation, error)
	ProcessChunk(ctx context.Context, input ChunkInput) (*ChunkResult, error)
	ProcessCascade(ctx context.Context, transcript, doctorNotes string, consultationID *uuid.UUID) (*CascadeOutcome, error)
	SaveMedicalRecord(ctx context.Context, id uuid.UUID, update PartialUpdate) (*Consultation, error)
	Finish(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Resume(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Get(ctx context.Context, id uuid.UUID) (*Consultation, error)
	List(ctx context.Context, patientID *uuid.UUID, page, limit int) ([]Consultation, int, error)
	Chat(ctx context.Context, id uuid.UUID, message string) (*Consultation, string, error)
}

// ChunkInput carries one increment of a live session. Exactly one of
// AudioData or TextChunk must be set.
type ChunkInput struct {
	ConsultationID uuid.UUID
	AudioData      []byte
	AudioFormat    string
	TextChunk      string
}

// ChunkResult is the per-chunk reply: the accumulated transcript, whether
// the trigger fired, and the cascade result when a fired run succeeded. A
// fired run that failed leaves Analysis nil and reports the stage in
// AnalysisError without failing the chunk itself.
type ChunkResult struct {
	Transcript    string         `json:"transcript"`
	Triggered     bool           `json:"triggered"`
	Analysis      *CascadeResult `json:"analysis,omitempty"`
	AnalysisError string         `json:"analysisError,omitempty"`
}

// CascadeOutcome pairs a cascade result with its persistence status, so a
// storage hiccup never discards computed AI output.
type CascadeOutcome struct {
	Result       *CascadeResult `json:"result"`
	Consultation *Consultation  `json:"consultation,omitempty"`
	Persisted    bool           `json:"persisted"`
	PersistError string         `json:"persistError,omitempty"`
}

type service struct {
	repo     Repository
	patients patient.Repository
	adapter  ChunkAdapter
	cascade  CascadeRunner
	trigger  TriggerPolicy
	chat     ChatClient
	log      zerolog.Logger

	// locks serializes transcript appends and cascade runs per consultation
	// so chunks apply in arrival order and two cascades never race on the
	// same record. Distinct consultations proceed in parallel.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewService(
	repo Repository,
	patients patient.Repository,
	adapter ChunkAdapter,
	cascadeRunner CascadeRunner,
	trigger TriggerPolicy,
	chat ChatClient,
	log zerolog.Logger,
) Service {
	return &service{
		repo:     repo,
		patients: patients,
		adapter:  adapter,
		cascade:  cascadeRunner,
		trigger:  trigger,
		chat:     chat,
		log:      log.With().Str("component", "consultation").Logger(),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *service) lockFor(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	return mu
}

func (s *service) StartRecording(ctx context.Context, patientID *uuid.UUID, anonymousName *string) (*Consultation, error) {
	var patientName *string
	if patientID != nil {
		p, err := s.patients.GetByID(ctx, *patientID)
		if err != nil {
			return nil, fmt.Errorf("look up patient %s: %w", patientID, err)
		}
		patientName = &p.Name
	} else if anonymousName != nil && strings.TrimSpace(*anonymousName) != "" {
		patientName = anonymousName
	}

	c, err := s.repo.Create(ctx, patientID, patientName)
	if err != nil {
		return nil, &clinicerr.PersistenceError{Op: "create consultation", Err: err}
	}

	// Fresh session: make sure no stale buffer or watermark survives an id
	// collision or a reused consultation.
	if err := s.adapter.Reset(ctx, c.ID.String()); err != nil {
		s.log.Warn().Err(err).Str("consultation_id", c.ID.String()).Msg("buffer reset failed on start")
	}
	s.trigger.Reset(c.ID.String())

	s.log.Info().Str("consultation_id", c.ID.String()).Msg("recording started")
	return c, nil
}

func (s *service) ProcessChunk(ctx context.Context, input ChunkInput) (*ChunkResult, error) {
	if len(input.AudioData) == 0 && strings.TrimSpace(input.TextChunk) == "" {
		return nil, clinicerr.Validationf("audioData or textChunk is required")
	}

	mu := s.lockFor(input.ConsultationID)
	mu.Lock()
	defer mu.Unlock()

	// Fetched under the lock, so a Finish that won the lock first is always
	// visible here and no chunk can land after endedAt is set.
	c, err := s.repo.GetByID(ctx, input.ConsultationID)
	if err != nil {
		return nil, err
	}
	if !c.Active() {
		return nil, clinicerr.Validationf("consultation %s is finished and no longer accepts chunks", input.ConsultationID)
	}

	id := input.ConsultationID.String()

	// After a resume or a restart the buffer starts cold while the record
	// already carries transcript text. The stored record is authoritative;
	// rewarm the buffer from it so the append extends the session instead of
	// replacing it.
	buffered, err := s.adapter.Transcript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read transcript buffer: %w", err)
	}
	if buffered == "" && c.Transcript != "" {
		if err := s.adapter.Seed(ctx, id, c.Transcript); err != nil {
			return nil, fmt.Errorf("rehydrate transcript buffer: %w", err)
		}
	}

	var transcript string
	if len(input.AudioData) > 0 {
		transcript, err = s.adapter.ProcessAudioChunk(ctx, id, input.AudioData, input.AudioFormat)
	} else {
		transcript, err = s.adapter.ProcessTextChunk(ctx, id, input.TextChunk)
	}
	if err != nil {
		return nil, fmt.Errorf("accumulate chunk: %w", err)
	}

	// The persisted record is the source of truth; the buffer is only an
	// accelerator. Persist before reporting success.
	if _, err := s.repo.UpdateTranscript(ctx, input.ConsultationID, transcript); err != nil {
		return nil, &clinicerr.PersistenceError{Op: "update transcript", Err: err}
	}

	result := &ChunkResult{Transcript: transcript}
	if !s.trigger.ShouldTrigger(id, len(transcript)) {
		return result, nil
	}
	result.Triggered = true

	profile := s.profileFor(ctx, c)
	analysis, err := s.cascade.Run(ctx, transcript, deref(c.DoctorNotes), profile)
	if err != nil {
		// A failed incremental pass must not fail the chunk; the next
		// trigger will retry over a longer transcript.
		s.log.Error().Err(err).Str("consultation_id", id).Msg("incremental cascade failed")
		result.AnalysisError = err.Error()
		return result, nil
	}

	if _, err := s.repo.MergePartial(ctx, input.ConsultationID, analysis.ToPartialUpdate()); err != nil {
		s.log.Error().Err(err).Str("consultation_id", id).Msg("cascade result persistence failed")
		result.AnalysisError = (&clinicerr.PersistenceError{Op: "merge cascade result", Err: err}).Error()
	}
	result.Analysis = analysis
	return result, nil
}

func (s *service) ProcessCascade(ctx context.Context, transcript, doctorNotes string, consultationID *uuid.UUID) (*CascadeOutcome, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, clinicerr.Validationf("transcript must be a non-empty string")
	}

	var c *Consultation
	if consultationID != nil {
		mu := s.lockFor(*consultationID)
		mu.Lock()
		defer mu.Unlock()

		var err error
		c, err = s.repo.GetByID(ctx, *consultationID)
		if err != nil {
			return nil, err
		}
	}

	var profile *patient.Profile
	if c != nil {
		profile = s.profileFor(ctx, c)
		if doctorNotes == "" {
			doctorNotes = deref(c.DoctorNotes)
		}
	}

	result, err := s.cascade.Run(ctx, transcript, doctorNotes, profile)
	if err != nil {
		return nil, err
	}

	outcome := &CascadeOutcome{Result: result, Persisted: false}
	if c == nil {
		return outcome, nil
	}

	update := result.ToPartialUpdate()
	update.Transcript = SetField(transcript)
	updated, err := s.repo.MergePartial(ctx, c.ID, update)
	if err != nil {
		// The cascade already succeeded; hand the result back with the
		// persistence failure instead of discarding computed output.
		perr := &clinicerr.PersistenceError{Op: "merge cascade result", Err: err}
		s.log.Error().Err(perr).Str("consultation_id", c.ID.String()).Msg("cascade persisted nothing")
		outcome.PersistError = perr.Error()
		return outcome, nil
	}
	outcome.Consultation = updated
	outcome.Persisted = true
	return outcome, nil
}

// SaveMedicalRecord is the direct merger passthrough for manual partial
// saves. Attaching a patient denormalizes the display name unless the update
// carries one explicitly.
func (s *service) SaveMedicalRecord(ctx context.Context, id uuid.UUID, update PartialUpdate) (*Consultation, error) {
	if update.PatientID.Present && !update.PatientID.Null && !update.PatientName.Present {
		p, err := s.patients.GetByID(ctx, update.PatientID.Value)
		if err != nil {
			return nil, fmt.Errorf("look up patient %s: %w", update.PatientID.Value, err)
		}
		update.PatientName = SetField(p.Name)
	}
	if update.PatientID.Present && update.PatientID.Null && !update.PatientName.Present {
		update.PatientName = NullField[string]()
	}
	return s.repo.MergePartial(ctx, id, update)
}

// Finish stamps endedAt. Finishing an already-finished consultation simply
// re-stamps the timestamp; it never errors on state.
func (s *service) Finish(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	// Taking the consultation lock makes finishing wait out any in-flight
	// chunk, so endedAt is never set underneath an append.
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.repo.SetEnded(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if err := s.adapter.Reset(ctx, id.String()); err != nil {
		s.log.Warn().Err(err).Str("consultation_id", id.String()).Msg("buffer reset failed on finish")
	}
	s.trigger.Reset(id.String())
	s.log.Info().Str("consultation_id", id.String()).Msg("consultation finished")
	return c, nil
}

// Resume clears endedAt on a finished consultation. Resuming an active one
// is a no-op returning the current record.
func (s *service) Resume(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Active() {
		return c, nil
	}
	resumed, err := s.repo.SetEnded(ctx, id, false)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("consultation_id", id.String()).Msg("consultation resumed")
	return resumed, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, patientID *uuid.UUID, page, limit int) ([]Consultation, int, error) {
	return s.repo.List(ctx, patientID, page, limit)
}

// Chat answers a doctor's question over the full consultation context and
// appends both sides of the exchange to the chat log. The message list is
// read, extended and replaced wholesale through the merger.
func (s *service) Chat(ctx context.Context, id uuid.UUID, message string) (*Consultation, string, error) {
	if strings.TrimSpace(message) == "" {
		return nil, "", clinicerr.Validationf("message is required")
	}

	// The message list is read-modify-write; the lock keeps two concurrent
	// chats from dropping each other's exchange.
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	system := `You are a medical assistant helping a physician during a consultation.
You have the full context of the current encounter: transcript, summary, anamnesis, prescription and the doctor's notes.
Answer the physician's questions clearly and objectively, always grounded in the provided context.
If a question cannot be answered from the context, say so explicitly.`

	var b strings.Builder
	b.WriteString("ENCOUNTER CONTEXT:\n\nTRANSCRIPT:\n")
	b.WriteString(c.Transcript)
	b.WriteString("\n")
	appendBlock(&b, "CLINICAL SUMMARY", c.Summary)
	appendBlock(&b, "ANAMNESIS", c.Anamnesis)
	appendBlock(&b, "PRESCRIPTION", c.Prescription)
	appendBlock(&b, "DOCTOR'S NOTES", c.DoctorNotes)
	b.WriteString("\nPHYSICIAN'S QUESTION:\n")
	b.WriteString(message)

	reply, err := s.chat.Chat(ctx, system, b.String())
	if err != nil {
		return nil, "", &clinicerr.CapabilityError{Stage: "consultation chat", Err: err}
	}

	now := time.Now().UTC()
	messages := append(append([]ChatMessage{}, c.ChatMessages...),
		ChatMessage{Role: "user", Content: message, Timestamp: now},
		ChatMessage{Role: "assistant", Content: reply, Timestamp: now},
	)
	updated, err := s.repo.MergePartial(ctx, id, PartialUpdate{ChatMessages: SetField(messages)})
	if err != nil {
		return nil, "", &clinicerr.PersistenceError{Op: "append chat messages", Err: err}
	}
	return updated, reply, nil
}

// profileFor resolves the attached patient, degrading to no enrichment when
// the lookup fails: the cascade is more useful without profile context than
// not run at all.
func (s *service) profileFor(ctx context.Context, c *Consultation) *patient.Profile {
	if c.PatientID == nil {
		return nil
	}
	p, err := s.patients.GetByID(ctx, *c.PatientID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("consultation_id", c.ID.String()).
			Str("patient_id", c.PatientID.String()).
			Msg("patient lookup failed, running cascade without profile")
		return nil
	}
	return p
}

func appendBlock(b *strings.Builder, label string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	b.WriteString("\n")
	b.WriteString(label)
	b.WriteString(":\n")
	b.WriteString(*value)
	b.WriteString("\n")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
