package consultation

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewWSHandler(f.svc, zerolog.Nop()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSSessionFlow(t *testing.T) {
	f := newFixture()
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "start"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "started", reply.Type)
	require.NotNil(t, reply.ConsultationID)
	id := *reply.ConsultationID

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chunk", TextChunk: "patient reports chest pain"}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "transcript", reply.Type)
	require.Equal(t, "patient reports chest pain", reply.Transcript)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "stop"}))
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "stopped", reply.Type)

	stored, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	require.False(t, stored.Active())
	require.Equal(t, "patient reports chest pain", stored.Transcript)
}

func TestWSChunkBeforeStartIsRejected(t *testing.T) {
	f := newFixture()
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chunk", TextChunk: "hello"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "error", reply.Type)
	require.Contains(t, reply.Message, "recording not started")
}

func TestWSChunkWithExplicitConsultationID(t *testing.T) {
	f := newFixture()
	conn := dialWS(t, f)

	c, err := f.svc.StartRecording(context.Background(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chunk", ConsultationID: &c.ID, TextChunk: "resumed words"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "transcript", reply.Type)
	require.Equal(t, "resumed words", reply.Transcript)
}

func TestWSUnknownMessageType(t *testing.T) {
	f := newFixture()
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "noise"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "error", reply.Type)
	require.Equal(t, "unknown message type", reply.Message)
}

func TestWSTriggeredChunkCarriesAnalysis(t *testing.T) {
	f := newFixture()
	f.trigger.fire = []bool{true}
	conn := dialWS(t, f)

	c, err := f.svc.StartRecording(context.Background(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "chunk", ConsultationID: &c.ID, TextChunk: "a long enough chunk"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.True(t, reply.Triggered)
	require.NotNil(t, reply.Analysis)
	require.Equal(t, "summary text", reply.Analysis.Summary)
}
