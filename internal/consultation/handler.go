package consultation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinical-scribe/internal/clinicerr"
)

// ReportRenderer turns a consultation's medical record into a downloadable
// document.
type ReportRenderer interface {
	Render(c *Consultation) ([]byte, error)
}

type Handler struct {
	svc     Service
	reports ReportRenderer
}

func NewHandler(svc Service, reports ReportRenderer) *Handler {
	return &Handler{svc: svc, reports: reports}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clinicerr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case clinicerr.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case clinicerr.IsCapability(err):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

type startRecordingRequest struct {
	PatientID            *uuid.UUID `json:"patientId"`
	AnonymousPatientName *string    `json:"anonymousPatientName"`
}

type startRecordingResponse struct {
	ConsultationID uuid.UUID  `json:"consultationId"`
	PatientID      *uuid.UUID `json:"patientId,omitempty"`
	PatientName    *string    `json:"patientName,omitempty"`
}

func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}

	c, err := h.svc.StartRecording(r.Context(), req.PatientID, req.AnonymousPatientName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startRecordingResponse{
		ConsultationID: c.ID,
		PatientID:      c.PatientID,
		PatientName:    c.PatientName,
	})
}

type processChunkRequest struct {
	ConsultationID uuid.UUID `json:"consultationId"`
	AudioData      string    `json:"audioData"` // base64
	AudioFormat    string    `json:"audioFormat"`
	TextChunk      string    `json:"textChunk"`
}

func (h *Handler) ProcessChunk(w http.ResponseWriter, r *http.Request) {
	var req processChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}
	if req.ConsultationID == uuid.Nil {
		writeError(w, clinicerr.Validationf("consultationId is required"))
		return
	}

	input := ChunkInput{
		ConsultationID: req.ConsultationID,
		AudioFormat:    req.AudioFormat,
		TextChunk:      req.TextChunk,
	}
	if req.AudioData != "" {
		audio, err := base64.StdEncoding.DecodeString(req.AudioData)
		if err != nil {
			writeError(w, clinicerr.Validationf("audioData is not valid base64"))
			return
		}
		input.AudioData = audio
	}

	result, err := h.svc.ProcessChunk(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type processCascadeRequest struct {
	Transcript     string     `json:"transcript"`
	DoctorNotes    string     `json:"doctorNotes"`
	ConsultationID *uuid.UUID `json:"consultationId"`
}

func (h *Handler) ProcessCascade(w http.ResponseWriter, r *http.Request) {
	var req processCascadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}

	outcome, err := h.svc.ProcessCascade(r.Context(), req.Transcript, req.DoctorNotes, req.ConsultationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type saveMedicalRecordRequest struct {
	ConsultationID uuid.UUID `json:"consultationId"`
	PartialUpdate
}

func (h *Handler) SaveMedicalRecord(w http.ResponseWriter, r *http.Request) {
	var req saveMedicalRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}
	if req.ConsultationID == uuid.Nil {
		writeError(w, clinicerr.Validationf("consultationId is required"))
		return
	}

	c, err := h.svc.SaveMedicalRecord(r.Context(), req.ConsultationID, req.PartialUpdate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultation": c})
}

type consultationIDRequest struct {
	ConsultationID uuid.UUID `json:"consultationId"`
}

func (h *Handler) FinishConsultation(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Finish)
}

func (h *Handler) ResumeConsultation(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.svc.Resume)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (*Consultation, error)) {
	var req consultationIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}
	if req.ConsultationID == uuid.Nil {
		writeError(w, clinicerr.Validationf("consultationId is required"))
		return
	}

	c, err := op(r.Context(), req.ConsultationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultation": c})
}

type chatRequest struct {
	ConsultationID uuid.UUID `json:"consultationId"`
	Message        string    `json:"message"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, clinicerr.Validationf("invalid request body"))
		return
	}
	if req.ConsultationID == uuid.Nil {
		writeError(w, clinicerr.Validationf("consultationId is required"))
		return
	}

	c, reply, err := h.svc.Chat(r.Context(), req.ConsultationID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reply": reply, "consultation": c})
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, clinicerr.Validationf("invalid consultation id"))
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	var patientID *uuid.UUID
	if raw := r.URL.Query().Get("patientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, clinicerr.Validationf("invalid patientId"))
			return
		}
		patientID = &id
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	consultations, total, err := h.svc.List(r.Context(), patientID, page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consultations": consultations,
		"total":         total,
	})
}

func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, clinicerr.Validationf("invalid consultation id"))
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	pdf, err := h.reports.Render(c)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="medical-record-`+id.String()+`.pdf"`)
	_, _ = w.Write(pdf)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/start-recording", h.StartRecording)
	r.Post("/process-chunk", h.ProcessChunk)
	r.Post("/process-cascade", h.ProcessCascade)
	r.Post("/save-medical-record", h.SaveMedicalRecord)
	r.Post("/finish-consultation", h.FinishConsultation)
	r.Post("/resume-consultation", h.ResumeConsultation)
	r.Post("/chat", h.Chat)
	r.Get("/consultations", h.ListConsultations)
	r.Get("/consultations/{id}", h.GetConsultation)
	r.Get("/consultations/{id}/report", h.DownloadReport)
}
