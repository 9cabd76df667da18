package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	chatservice "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

type received struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
}

func dialVoice(t *testing.T, sp conversation.Speech) (*websocket.Conn, *chatservice.Service, string) {
	t.Helper()
	sessions := chatservice.NewService(chatservice.Options{Instruction: tutor.DefaultInstruction})
	info, err := sessions.CreateSession(context.Background())
	require.NoError(t, err)

	completer := tutor.CompleterFunc(func(_ context.Context, messages []tutor.Message) (string, error) {
		return "You said '" + messages[len(messages)-1].Text + "', but it would be better to say 'I went'.", nil
	})
	conv := conversation.NewService(sessions, tutor.NewController(tutor.Config{}), completer, sp)

	r := chi.NewRouter()
	NewWebSocketHandler(sessions, conv).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws/" + info.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	first := readMessage(t, conn)
	require.Equal(t, "connected", first.Type)
	return conn, sessions, info.ID
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestVoiceSocketText(t *testing.T) {
	conn, sessions, id := dialVoice(t, nil)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "I goed home"}}))
	reply := readMessage(t, conn)
	require.Equal(t, "reply", reply.Type)
	require.Equal(t, id, reply.SessionID)
	require.Len(t, reply.Data["corrections"], 1)

	turns, err := sessions.Transcript(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 3)
}

func TestVoiceSocketAudio(t *testing.T) {
	sp := &fakeSpeechService{transcript: "I goed home"}
	conn, _, _ := dialVoice(t, sp)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("part1"), "format": "pcm"}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("part2"), "isFinal": true}}))

	transcript := readMessage(t, conn)
	require.Equal(t, "transcript", transcript.Type)
	require.Equal(t, "I goed home", transcript.Data["text"])

	reply := readMessage(t, conn)
	require.Equal(t, "reply", reply.Type)
	require.NotContains(t, reply.Data, "audio")

	audio := readMessage(t, conn)
	require.Equal(t, "audio", audio.Type)
	require.Equal(t, "mp3", audio.Data["format"])

	sp.mu.Lock()
	defer sp.mu.Unlock()
	require.Equal(t, []byte("part1part2"), sp.asrRequest.Audio)
	require.Equal(t, "pcm", sp.asrRequest.Format)
}

func TestVoiceSocketErrors(t *testing.T) {
	conn, _, _ := dialVoice(t, &fakeSpeechService{transcript: ""})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "  "}}))
	msg := readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Equal(t, string(tutor.KindEmptyUtterance), msg.Data["kind"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio", "data": map[string]any{"audioData": []byte("x"), "isFinal": true}}))
	msg = readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Equal(t, string(tutor.KindCaptureUnavailable), msg.Data["kind"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	msg = readMessage(t, conn)
	require.Equal(t, "error", msg.Type)
}

func TestVoiceSocketConfig(t *testing.T) {
	conn, _, _ := dialVoice(t, &fakeSpeechService{})

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "config", "data": map[string]any{"voice": "en_male_adam", "ttsEnabled": false}}))
	msg := readMessage(t, conn)
	require.Equal(t, "config", msg.Type)
	require.Equal(t, "en_male_adam", msg.Data["voice"])
	require.Equal(t, false, msg.Data["tts"])
}

func TestVoiceSocketUnknownSession(t *testing.T) {
	sessions := chatservice.NewService(chatservice.Options{})
	conv := conversation.NewService(sessions, tutor.NewController(tutor.Config{}), nil, nil)
	r := chi.NewRouter()
	NewWebSocketHandler(sessions, conv).RegisterWebSocketRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/voice/ws/missing", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVoiceSocketSurvivesSlowCycle(t *testing.T) {
	sessions := chatservice.NewService(chatservice.Options{})
	info, err := sessions.CreateSession(context.Background())
	require.NoError(t, err)

	completer := tutor.CompleterFunc(func(context.Context, []tutor.Message) (string, error) {
		time.Sleep(600 * time.Millisecond)
		return "Sounds fun!", nil
	})
	conv := conversation.NewService(sessions, tutor.NewController(tutor.Config{}), completer, nil)

	h := NewWebSocketHandler(sessions, conv)
	h.readTimeout = 300 * time.Millisecond
	r := chi.NewRouter()
	h.RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/voice/ws/" + info.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, "connected", readMessage(t, conn).Type)

	// 每轮处理都比读超时更久，连接仍应保持
	for _, text := range []string{"I played football", "Then I went home"} {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": text}}))
		require.Equal(t, "reply", readMessage(t, conn).Type)
	}

	turns, err := sessions.Transcript(context.Background(), info.ID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
}
