package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
)

const (
	ttsDefaultResource = "volc.service_type.10029"
	ttsMegaResource    = "volc.megatts.default"
	ttsSeedResource    = "seed-tts-2.0"

	// ttsFinishedCode 是服务端标记合成结束的业务码
	ttsFinishedCode = 3000
)

// VolcengineTTSClient 火山引擎TTS WebSocket客户端
type VolcengineTTSClient struct {
	config *speech.Config
	dialer *websocket.Dialer
	logger zerolog.Logger
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

// NewVolcengineTTSClient 创建火山引擎TTS客户端
func NewVolcengineTTSClient(config *speech.Config) *VolcengineTTSClient {
	return &VolcengineTTSClient{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: log.With().Str("component", "tts").Logger(),
	}
}

// Synthesize 合成一段文本，单次连接、单次尝试。
func (c *VolcengineTTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	speaker := strings.TrimSpace(req.Voice)
	if speaker == "" {
		speaker = strings.TrimSpace(c.config.TTSVoice)
	}
	resourceID := strings.TrimSpace(c.config.TTSResourceID)
	if resourceID == "" {
		resourceID = resolveTTSResource(speaker)
	}

	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.config.TTSURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.logger.Debug().Str("logid", logid).Str("resource", resourceID).Msg("connected")
		}
	}
	stop := closeOnDone(ctx, conn)
	defer stop()

	payload, err := json.Marshal(c.buildRequest(req, speaker))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newClientRequest(payload, NoCompression).Marshal()); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	format := audioFormat(req.Format)
	var (
		audio    bytes.Buffer
		reqID    string
		duration int64
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}
		body, err := payloadOf(frame)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch frame.Type {
		case ErrorMessage:
			return nil, &UpstreamError{Op: "tts", Code: int(frame.ErrorCode), Message: string(body)}

		case AudioOnlyServerResponse:
			audio.Write(body)
			if !frame.IsLast() {
				continue
			}

		case FullServerResponse:
			var msg ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					c.logger.Warn().Err(err).Msg("failed to unmarshal response payload")
				}
			}
			if msg.Code != 0 && msg.Code != ttsFinishedCode {
				return nil, &UpstreamError{Op: "tts", Code: msg.Code, Message: msg.Message}
			}
			if msg.ReqID != "" {
				reqID = msg.ReqID
			}
			if msg.Addition.Duration != "" {
				if parsed, err := strconv.ParseInt(msg.Addition.Duration, 10, 64); err == nil {
					duration = parsed
				}
			}
			if msg.Data != "" {
				chunk, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
				}
				audio.Write(chunk)
			}

			finished := (frame.hasEvent() && frame.Event == EventSessionFinished) ||
				frame.IsLast() || msg.Sequence < 0 || msg.Code == ttsFinishedCode
			if !finished {
				continue
			}

		default:
			c.logger.Debug().Uint8("type", uint8(frame.Type)).Msg("unexpected message type")
			continue
		}

		if audio.Len() == 0 {
			return nil, fmt.Errorf("%w: TTS audio is empty", ErrNoAudio)
		}
		if reqID == "" {
			reqID = connectID
		}
		return &speech.TTSResponse{
			SessionID: req.SessionID,
			AudioData: audio.Bytes(),
			Duration:  duration,
			Format:    format,
			RequestID: reqID,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}

func (c *VolcengineTTSClient) buildRequest(req *speech.TTSRequest, speaker string) *ttsRequest {
	out := &ttsRequest{}

	out.User.UID = strings.TrimSpace(req.SessionID)
	if out.User.UID == "" {
		out.User.UID = uuid.NewString()
	}
	out.ReqParams.Speaker = speaker
	out.ReqParams.Text = req.Text
	out.ReqParams.AudioParams.Format = audioFormat(req.Format)
	out.ReqParams.AudioParams.SampleRate = 24000

	speed := req.Speed
	if speed <= 0 {
		speed = c.config.TTSSpeed
	}
	if speed > 0 && speed != 1.0 {
		out.ReqParams.AudioParams.SpeedRatio = speed
	}

	volume := req.Volume
	if volume <= 0 {
		volume = c.config.TTSVolume
	}
	if volume > 0 && volume != 1.0 {
		out.ReqParams.AudioParams.VolumeRatio = volume
	}

	out.ReqParams.Language = strings.TrimSpace(req.Language)
	if out.ReqParams.Language == "" {
		out.ReqParams.Language = strings.TrimSpace(c.config.TTSLanguage)
	}
	return out
}

// audioFormat 规范化输出格式，wav 不受支持，回退为 mp3。
func audioFormat(format string) string {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", "wav", "mp3":
		return "mp3"
	default:
		return f
	}
}

// resolveTTSResource 根据音色推断资源 ID：复刻音色走 megatts，大模型音色走 seed-tts。
func resolveTTSResource(voice string) string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return ttsMegaResource
	}

	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return ttsSeedResource
		}
	}
	return ttsDefaultResource
}

// closeOnDone 在 ctx 结束时关闭连接以打断阻塞读取。
func closeOnDone(ctx context.Context, conn *websocket.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
