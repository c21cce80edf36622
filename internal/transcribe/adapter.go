package transcribe

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// SpeechToText converts raw audio into text.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Refiner cleans up a client-side transcription chunk without changing its
// meaning.
type Refiner interface {
	Refine(ctx context.Context, text string) (string, error)
}

// Adapter turns incoming chunks into accumulated transcript text. Both paths
// degrade instead of failing: a dead STT provider yields no new text, and a
// failed refinement falls back to the original chunk. A chunk is never lost
// to a capability error.
type Adapter struct {
	stt     SpeechToText
	refiner Refiner
	buffer  BufferStore
	log     zerolog.Logger
}

func NewAdapter(stt SpeechToText, refiner Refiner, buffer BufferStore, log zerolog.Logger) *Adapter {
	return &Adapter{
		stt:     stt,
		refiner: refiner,
		buffer:  buffer,
		log:     log.With().Str("component", "transcribe").Logger(),
	}
}

// ProcessAudioChunk transcribes one audio chunk and appends the result to the
// consultation's buffer, returning the full accumulated transcript. STT
// failure is logged and treated as silence.
func (a *Adapter) ProcessAudioChunk(ctx context.Context, consultationID string, audio []byte, format string) (string, error) {
	text, err := a.stt.Transcribe(ctx, audio, format)
	if err != nil {
		a.log.Warn().Err(err).
			Str("consultation_id", consultationID).
			Int("audio_bytes", len(audio)).
			Msg("speech-to-text failed, dropping chunk audio")
		text = ""
	}
	return a.buffer.Append(ctx, consultationID, text)
}

// ProcessTextChunk appends a pre-transcribed chunk, optionally passed through
// the refiner first.
func (a *Adapter) ProcessTextChunk(ctx context.Context, consultationID, text string) (string, error) {
	chunk := text
	if a.refiner != nil {
		refined, err := a.refiner.Refine(ctx, text)
		if err != nil {
			a.log.Warn().Err(err).
				Str("consultation_id", consultationID).
				Msg("chunk refinement failed, keeping original text")
		} else if refined != "" {
			chunk = refined
		}
	}
	return a.buffer.Append(ctx, consultationID, chunk)
}

// Seed replaces the buffer with the given transcript. Called when a session
// resumes, or after a restart, with a cold buffer while the persisted record
// already carries text; the stored record stays authoritative.
func (a *Adapter) Seed(ctx context.Context, consultationID, transcript string) error {
	if err := a.buffer.Reset(ctx, consultationID); err != nil {
		return err
	}
	if strings.TrimSpace(transcript) == "" {
		return nil
	}
	_, err := a.buffer.Append(ctx, consultationID, transcript)
	return err
}

// Transcript returns the current accumulated buffer.
func (a *Adapter) Transcript(ctx context.Context, consultationID string) (string, error) {
	return a.buffer.Get(ctx, consultationID)
}

// Reset clears the buffer for a consultation; called on session start/stop.
func (a *Adapter) Reset(ctx context.Context, consultationID string) error {
	return a.buffer.Reset(ctx, consultationID)
}
