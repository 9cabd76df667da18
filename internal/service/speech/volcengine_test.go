package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
)

// fakeVolcengine 模拟火山引擎 WebSocket 服务端
type fakeVolcengine struct {
	t       *testing.T
	handler func(conn *websocket.Conn)

	mu      sync.Mutex
	headers http.Header
}

func newFakeVolcengine(t *testing.T, handler func(conn *websocket.Conn)) (*fakeVolcengine, string) {
	t.Helper()
	fake := &fakeVolcengine{t: t, handler: handler}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.headers = r.Header.Clone()
		fake.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fake.handler(conn)
	}))
	t.Cleanup(srv.Close)

	return fake, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (f *fakeVolcengine) header(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers.Get(key)
}

func testConfig(url string) *speech.Config {
	return &speech.Config{
		AppID:       "app",
		AccessToken: "token",
		TTSURL:      url,
		ASRURL:      url,
		ASRLanguage: "en-US",
		TTSVoice:    "en_female_amanda_mars_bigtts",
		TTSSpeed:    1.0,
		TTSVolume:   1.0,
		TTSLanguage: "en-US",
		Timeout:     5 * time.Second,
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Frame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := UnmarshalFrame(data)
	require.NoError(t, err)
	return frame
}

func writeJSONFrame(t *testing.T, conn *websocket.Conn, flags MessageFlags, sequence int32, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	frame := &Frame{
		Type:          FullServerResponse,
		Flags:         flags,
		Serialization: JSONSerialization,
		Sequence:      sequence,
		Payload:       body,
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()))
}

func TestTTSSynthesize(t *testing.T) {
	requests := make(chan ttsRequest, 1)
	fake, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		frame := readFrame(t, conn)
		require.Equal(t, FullClientRequest, frame.Type)
		var request ttsRequest
		require.NoError(t, json.Unmarshal(frame.Payload, &request))
		requests <- request

		audio := &Frame{Type: AudioOnlyServerResponse, Flags: PositiveSequenceNumber, Sequence: 1, Payload: []byte("abc")}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, audio.Marshal()))

		writeJSONFrame(t, conn, NegativeSequenceNumber, -2, map[string]any{
			"reqid":    "req-1",
			"code":     ttsFinishedCode,
			"data":     base64.StdEncoding.EncodeToString([]byte("def")),
			"addition": map[string]string{"duration": "1200"},
		})
	})

	client := NewVolcengineTTSClient(testConfig(url))
	resp, err := client.Synthesize(context.Background(), &speech.TTSRequest{SessionID: "s1", Text: "Hello there"})
	require.NoError(t, err)

	require.Equal(t, []byte("abcdef"), resp.AudioData)
	require.Equal(t, "mp3", resp.Format)
	require.Equal(t, "req-1", resp.RequestID)
	require.Equal(t, int64(1200), resp.Duration)

	request := <-requests
	require.Equal(t, "Hello there", request.ReqParams.Text)
	require.Equal(t, "en_female_amanda_mars_bigtts", request.ReqParams.Speaker)
	require.Equal(t, "en-US", request.ReqParams.Language)
	require.Equal(t, "s1", request.User.UID)

	require.Equal(t, "app", fake.header("X-Api-App-Key"))
	require.Equal(t, "token", fake.header("X-Api-Access-Key"))
	require.Equal(t, ttsSeedResource, fake.header("X-Api-Resource-Id"))
}

func TestTTSSynthesizeUpstreamError(t *testing.T) {
	_, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		frame := &Frame{Type: ErrorMessage, ErrorCode: 45000000, Payload: []byte("quota exceeded")}
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame.Marshal()))
	})

	_, err := NewVolcengineTTSClient(testConfig(url)).Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, 45000000, upstream.Code)
	require.Equal(t, "tts", upstream.Op)
}

func TestTTSSynthesizeNoAudio(t *testing.T) {
	_, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		writeJSONFrame(t, conn, NegativeSequenceNumber, -1, map[string]any{"code": 0})
	})

	_, err := NewVolcengineTTSClient(testConfig(url)).Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrNoAudio)
}

func TestTTSSynthesizeValidation(t *testing.T) {
	client := NewVolcengineTTSClient(testConfig("ws://127.0.0.1:1"))
	_, err := client.Synthesize(context.Background(), &speech.TTSRequest{Text: "  "})
	require.ErrorIs(t, err, ErrEmptyText)

	cfg := testConfig("ws://127.0.0.1:1")
	cfg.AccessToken = ""
	_, err = NewVolcengineTTSClient(cfg).Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func newTestASRClient(url string) *VolcengineASRClient {
	client := NewVolcengineASRClient(testConfig(url))
	client.chunkInterval = 0
	return client
}

// drainAudio 读完客户端上传的音频包，返回包数与拼接后的音频
func drainAudio(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	var (
		packets int
		audio   []byte
	)
	for {
		frame := readFrame(t, conn)
		require.Equal(t, AudioOnlyRequest, frame.Type)
		body, err := payloadOf(frame)
		require.NoError(t, err)
		audio = append(audio, body...)
		packets++
		if frame.IsLast() {
			require.Equal(t, int32(-(packets + 1)), frame.Sequence)
			return packets, audio
		}
		require.Equal(t, int32(packets+1), frame.Sequence)
	}
}

func TestASRTranscribe(t *testing.T) {
	input := make([]byte, asrChunkSize*2+100)
	for i := range input {
		input[i] = byte(i)
	}

	type upload struct {
		request  asrRequest
		packets  int
		received []byte
	}
	uploads := make(chan upload, 1)
	fake, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		frame := readFrame(t, conn)
		require.Equal(t, FullClientRequest, frame.Type)
		body, err := payloadOf(frame)
		require.NoError(t, err)

		var u upload
		require.NoError(t, json.Unmarshal(body, &u.request))
		u.packets, u.received = drainAudio(t, conn)
		uploads <- u

		writeJSONFrame(t, conn, PositiveSequenceNumber, 1, map[string]any{
			"code":   asrOKCode,
			"result": map[string]any{"text": "I goes"},
		})
		writeJSONFrame(t, conn, NegativeSequenceNumber, -2, map[string]any{
			"code":       asrOKCode,
			"result":     map[string]any{"text": "I goed to school yesterday."},
			"audio_info": map[string]any{"duration": 2300},
		})
	})

	resp, err := newTestASRClient(url).Transcribe(context.Background(), &speech.ASRRequest{SessionID: "s1", Audio: input})
	require.NoError(t, err)

	require.Equal(t, "I goed to school yesterday.", resp.Text)
	require.Equal(t, int64(2300), resp.Duration)
	u := <-uploads
	require.Equal(t, 3, u.packets)
	require.Equal(t, input, u.received)
	require.Equal(t, "wav", u.request.Audio.Format)
	require.Equal(t, "en-US", u.request.Audio.Language)
	require.Equal(t, "volc.bigasr.sauc.duration", fake.header("X-Api-Resource-Id"))
	require.Equal(t, "s1", fake.header("X-Api-Connect-Id"))
}

func TestASRTranscribeUtterancesFallback(t *testing.T) {
	_, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		drainAudio(t, conn)
		writeJSONFrame(t, conn, NegativeSequenceNumber, -1, map[string]any{
			"code": 0,
			"result": map[string]any{
				"utterances": []map[string]any{{"text": "hello"}, {"text": " "}, {"text": "world"}},
			},
		})
	})

	resp, err := newTestASRClient(url).Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1, 2}})
	require.NoError(t, err)
	require.Equal(t, "hello world", resp.Text)
}

func TestASRTranscribeEmptyResult(t *testing.T) {
	_, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		drainAudio(t, conn)
		writeJSONFrame(t, conn, NegativeSequenceNumber, -1, map[string]any{"code": asrOKCode})
	})

	_, err := newTestASRClient(url).Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1, 2}})
	require.ErrorIs(t, err, ErrNotUnderstood)
}

func TestASRTranscribeUpstreamError(t *testing.T) {
	_, url := newFakeVolcengine(t, func(conn *websocket.Conn) {
		readFrame(t, conn)
		drainAudio(t, conn)
		writeJSONFrame(t, conn, NoSequenceNumber, 0, map[string]any{"code": 45000081, "message": "invalid audio"})
	})

	_, err := newTestASRClient(url).Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1, 2}})

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream), "got %v", err)
	require.Equal(t, "asr", upstream.Op)
	require.Equal(t, 45000081, upstream.Code)
}

func TestASRTranscribeNoAudio(t *testing.T) {
	_, err := newTestASRClient("ws://127.0.0.1:1").Transcribe(context.Background(), &speech.ASRRequest{})
	require.ErrorIs(t, err, ErrNoAudio)
}
