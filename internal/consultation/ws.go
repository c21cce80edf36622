package consultation

import (
	"encoding/base64"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// The live-session socket carries the same chunk semantics as the HTTP
// endpoints: start opens a consultation, each chunk returns the accumulated
// transcript plus any incremental analysis, stop finishes the consultation.

type wsMessage struct {
	Type                 string     `json:"type"` // "start" | "chunk" | "stop"
	PatientID            *uuid.UUID `json:"patientId,omitempty"`
	AnonymousPatientName *string    `json:"anonymousPatientName,omitempty"`
	ConsultationID       *uuid.UUID `json:"consultationId,omitempty"`
	AudioData            string     `json:"audioData,omitempty"` // base64
	AudioFormat          string     `json:"audioFormat,omitempty"`
	TextChunk            string     `json:"textChunk,omitempty"`
}

type wsReply struct {
	Type           string         `json:"type"` // "started" | "transcript" | "stopped" | "error"
	ConsultationID *uuid.UUID     `json:"consultationId,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	Triggered      bool           `json:"triggered,omitempty"`
	Analysis       *CascadeResult `json:"analysis,omitempty"`
	Message        string         `json:"message,omitempty"`
}

type WSHandler struct {
	svc      Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(svc Service, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 20,
			WriteBufferSize: 16 << 10,
			// Browser clients connect from the app origin; auth lives in
			// front of this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	var consultationID *uuid.UUID

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch msg.Type {
		case "start":
			c, err := h.svc.StartRecording(r.Context(), msg.PatientID, msg.AnonymousPatientName)
			if err != nil {
				h.writeError(conn, err)
				continue
			}
			consultationID = &c.ID
			h.write(conn, wsReply{Type: "started", ConsultationID: &c.ID})

		case "chunk":
			id := consultationID
			if msg.ConsultationID != nil {
				id = msg.ConsultationID
			}
			if id == nil {
				h.writeError(conn, errMissingSession)
				continue
			}

			input := ChunkInput{
				ConsultationID: *id,
				AudioFormat:    msg.AudioFormat,
				TextChunk:      msg.TextChunk,
			}
			if msg.AudioData != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.AudioData)
				if err != nil {
					h.write(conn, wsReply{Type: "error", Message: "audioData is not valid base64"})
					continue
				}
				input.AudioData = audio
			}

			result, err := h.svc.ProcessChunk(r.Context(), input)
			if err != nil {
				h.writeError(conn, err)
				continue
			}
			h.write(conn, wsReply{
				Type:           "transcript",
				ConsultationID: id,
				Transcript:     result.Transcript,
				Triggered:      result.Triggered,
				Analysis:       result.Analysis,
			})

		case "stop":
			id := consultationID
			if msg.ConsultationID != nil {
				id = msg.ConsultationID
			}
			if id == nil {
				h.writeError(conn, errMissingSession)
				continue
			}
			if _, err := h.svc.Finish(r.Context(), *id); err != nil {
				h.writeError(conn, err)
				continue
			}
			h.write(conn, wsReply{Type: "stopped", ConsultationID: id})
			consultationID = nil

		default:
			h.write(conn, wsReply{Type: "error", Message: "unknown message type"})
		}
	}
}

var errMissingSession = &sessionError{}

type sessionError struct{}

func (*sessionError) Error() string { return "recording not started" }

func (h *WSHandler) write(conn *websocket.Conn, reply wsReply) {
	if err := conn.WriteJSON(reply); err != nil {
		h.log.Warn().Err(err).Msg("websocket write failed")
	}
}

func (h *WSHandler) writeError(conn *websocket.Conn, err error) {
	h.write(conn, wsReply{Type: "error", Message: err.Error()})
}
