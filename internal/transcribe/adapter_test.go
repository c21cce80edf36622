package transcribe

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubSTT struct {
	text string
	err  error
}

func (s *stubSTT) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return s.text, s.err
}

type stubRefiner struct {
	refined string
	err     error
}

func (s *stubRefiner) Refine(_ context.Context, _ string) (string, error) {
	return s.refined, s.err
}

func TestProcessAudioChunkAccumulates(t *testing.T) {
	stt := &stubSTT{text: "hello"}
	a := NewAdapter(stt, nil, NewMemoryBuffer(), zerolog.Nop())

	full, err := a.ProcessAudioChunk(context.Background(), "c1", []byte{1, 2}, "audio/webm")
	require.NoError(t, err)
	require.Equal(t, "hello", full)

	stt.text = "doctor"
	full, err = a.ProcessAudioChunk(context.Background(), "c1", []byte{3}, "audio/webm")
	require.NoError(t, err)
	require.Equal(t, "hello doctor", full)
}

func TestProcessAudioChunkDegradesOnSTTFailure(t *testing.T) {
	buf := NewMemoryBuffer()
	a := NewAdapter(&stubSTT{text: "first"}, nil, buf, zerolog.Nop())

	full, err := a.ProcessAudioChunk(context.Background(), "c1", []byte{1}, "audio/webm")
	require.NoError(t, err)
	require.Equal(t, "first", full)

	// Provider failure must not lose the session: the chunk yields no text
	// and the transcript so far survives.
	a = NewAdapter(&stubSTT{err: errors.New("provider down")}, nil, buf, zerolog.Nop())
	full, err = a.ProcessAudioChunk(context.Background(), "c1", []byte{2}, "audio/webm")
	require.NoError(t, err)
	require.Equal(t, "first", full)
}

func TestProcessTextChunkUsesRefinement(t *testing.T) {
	a := NewAdapter(nil, &stubRefiner{refined: "Patient reports headache."}, NewMemoryBuffer(), zerolog.Nop())

	full, err := a.ProcessTextChunk(context.Background(), "c1", "patient reports headake")
	require.NoError(t, err)
	require.Equal(t, "Patient reports headache.", full)
}

func TestProcessTextChunkFallsBackOnRefinerFailure(t *testing.T) {
	a := NewAdapter(nil, &stubRefiner{err: errors.New("llm down")}, NewMemoryBuffer(), zerolog.Nop())

	full, err := a.ProcessTextChunk(context.Background(), "c1", "original words")
	require.NoError(t, err)
	require.Equal(t, "original words", full)
}

func TestProcessTextChunkIgnoresEmptyRefinement(t *testing.T) {
	a := NewAdapter(nil, &stubRefiner{refined: ""}, NewMemoryBuffer(), zerolog.Nop())

	full, err := a.ProcessTextChunk(context.Background(), "c1", "keep me")
	require.NoError(t, err)
	require.Equal(t, "keep me", full)
}

func TestSeedReplacesBufferContents(t *testing.T) {
	a := NewAdapter(nil, nil, NewMemoryBuffer(), zerolog.Nop())

	_, err := a.ProcessTextChunk(context.Background(), "c1", "stale text")
	require.NoError(t, err)

	require.NoError(t, a.Seed(context.Background(), "c1", "persisted transcript"))

	full, err := a.ProcessTextChunk(context.Background(), "c1", "new chunk")
	require.NoError(t, err)
	require.Equal(t, "persisted transcript new chunk", full)
}

func TestSeedWithBlankTranscriptClears(t *testing.T) {
	a := NewAdapter(nil, nil, NewMemoryBuffer(), zerolog.Nop())

	_, err := a.ProcessTextChunk(context.Background(), "c1", "stale text")
	require.NoError(t, err)

	require.NoError(t, a.Seed(context.Background(), "c1", "  "))

	got, err := a.Transcript(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestResetClearsBuffer(t *testing.T) {
	a := NewAdapter(nil, nil, NewMemoryBuffer(), zerolog.Nop())

	_, err := a.ProcessTextChunk(context.Background(), "c1", "some text")
	require.NoError(t, err)

	require.NoError(t, a.Reset(context.Background(), "c1"))

	got, err := a.Transcript(context.Background(), "c1")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestJoinChunkTrimsAndSkipsBlank(t *testing.T) {
	require.Equal(t, "a b", joinChunk("a", "  b  "))
	require.Equal(t, "a", joinChunk("a", "   "))
	require.Equal(t, "b", joinChunk("", "b"))
}
