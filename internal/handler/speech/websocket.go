package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = readTimeout * 9 / 10
	writeTimeout = 10 * time.Second
	// maxBufferedAudio 单条语音在内存中累计的上限
	maxBufferedAudio = 16 << 20
)

// WebSocketHandler 实时语音对话处理器
type WebSocketHandler struct {
	sessions *chatservice.Service
	conv     *conversation.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	// readTimeout 两条消息之间允许的最长空闲，处理消息的耗时不计入
	readTimeout time.Duration
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *chatservice.Service, conv *conversation.Service) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		conv:     conv,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:      log.With().Str("component", "voice-ws").Logger(),
		readTimeout: readTimeout,
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/voice/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AudioMessage 音频消息，audioData 为 base64
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ConfigMessage 配置消息
type ConfigMessage struct {
	Language   string `json:"language"`
	Voice      string `json:"voice"`
	TTSEnabled *bool  `json:"ttsEnabled,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

type connectionState struct {
	sessionID   string
	language    string
	voice       string
	ttsEnabled  bool
	audioFormat string
	buffer      bytes.Buffer
}

// wsConn 串行化写操作，gorilla 连接只允许一个并发写者
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) send(msg outgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.Get(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	logger := h.logger.With().Str("session", sessionID).Logger()
	logger.Info().Msg("voice connection opened")
	defer logger.Info().Msg("voice connection closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = raw.SetReadDeadline(time.Now().Add(h.readTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	go h.pingLoop(ctx, raw)

	state := &connectionState{
		sessionID:  sessionID,
		ttsEnabled: h.conv.SpeechEnabled(),
	}
	h.sendInfo(conn, state, "connected", map[string]any{
		"speech": h.conv.SpeechEnabled(),
		"tts":    state.ttsEnabled,
	})

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}

		if !h.handleMessage(ctx, conn, state, &msg) {
			return
		}
		// 一轮语音对话可能超过 readTimeout，期间不会读取 pong
		_ = raw.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

// handleMessage 返回 false 表示会话已不存在，连接应关闭
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, state *connectionState, msg *inboundMessage) bool {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(conn, state, "invalid text payload", "")
			return true
		}
		reply, err := h.conv.Say(ctx, state.sessionID, text.Text, h.options(state))
		return h.deliver(conn, state, reply, err)

	case "audio":
		var audio AudioMessage
		if err := json.Unmarshal(msg.Data, &audio); err != nil {
			h.sendError(conn, state, "invalid audio payload", "")
			return true
		}
		if state.buffer.Len()+len(audio.AudioData) > maxBufferedAudio {
			state.buffer.Reset()
			h.sendError(conn, state, "recording is too long", string(tutor.KindCaptureUnavailable))
			return true
		}
		state.buffer.Write(audio.AudioData)
		if audio.Format != "" {
			state.audioFormat = audio.Format
		}
		if audio.Language != "" {
			state.language = audio.Language
		}
		if !audio.IsFinal {
			return true
		}
		return h.processBufferedAudio(ctx, conn, state)

	case "config":
		var cfg ConfigMessage
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			h.sendError(conn, state, "invalid config payload", "")
			return true
		}
		if cfg.Language != "" {
			state.language = cfg.Language
		}
		if cfg.Voice != "" {
			state.voice = cfg.Voice
		}
		if cfg.TTSEnabled != nil {
			state.ttsEnabled = *cfg.TTSEnabled && h.conv.SpeechEnabled()
		}
		h.sendInfo(conn, state, "config", map[string]any{
			"language": state.language,
			"voice":    state.voice,
			"tts":      state.ttsEnabled,
		})
		return true

	default:
		h.sendError(conn, state, "unsupported message type: "+msg.Type, "")
		return true
	}
}

func (h *WebSocketHandler) processBufferedAudio(ctx context.Context, conn *wsConn, state *connectionState) bool {
	audio := bytes.Clone(state.buffer.Bytes())
	state.buffer.Reset()

	format := state.audioFormat
	if format == "" {
		format = "wav"
	}

	transcript, reply, err := h.conv.Listen(ctx, state.sessionID, speech.ASRRequest{
		Audio:    audio,
		Format:   format,
		Language: state.language,
	}, h.options(state))
	if transcript != "" {
		h.sendInfo(conn, state, "transcript", map[string]any{"text": transcript})
	}
	return h.deliver(conn, state, reply, err)
}

// deliver 先发送文本回复，再单独发送音频
func (h *WebSocketHandler) deliver(conn *wsConn, state *connectionState, reply *conversation.Reply, err error) bool {
	if err != nil {
		if conversation.IsNotFound(err) {
			h.sendError(conn, state, "session not found", "")
			return false
		}
		var de *tutor.DialogueError
		if errors.As(err, &de) {
			h.sendError(conn, state, de.Message, string(de.Kind))
			return true
		}
		h.logger.Error().Err(err).Str("session", state.sessionID).Msg("dialogue failed")
		h.sendError(conn, state, "internal error", "")
		return true
	}

	audio := reply.Audio
	text := *reply
	text.Audio = nil
	h.sendInfo(conn, state, "reply", text)

	if audio != nil {
		h.sendInfo(conn, state, "audio", audio)
	}
	return true
}

func (h *WebSocketHandler) options(state *connectionState) conversation.Options {
	return conversation.Options{
		Speak:    state.ttsEnabled,
		Voice:    state.voice,
		Language: strings.TrimSpace(state.language),
	}
}

func (h *WebSocketHandler) sendInfo(conn *wsConn, state *connectionState, kind string, data any) {
	msg := outgoingMessage{
		Type:      kind,
		SessionID: state.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.send(msg); err != nil {
		h.logger.Debug().Err(err).Str("type", kind).Msg("write failed")
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, state *connectionState, message, kind string) {
	h.sendInfo(conn, state, "error", errorPayload{Message: message, Kind: kind})
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
