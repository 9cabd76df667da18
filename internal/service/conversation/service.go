package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/analysis/correction"
	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	speechsvc "github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// Sessions 是会话注册表的最小接口
type Sessions interface {
	Do(ctx context.Context, sessionID string, fn func(*chat.Session) error) error
}

// Speech 是对话需要的语音能力
type Speech interface {
	Enabled() bool
	Synthesize(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)
	Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.ASRResponse, error)
}

// Reply 是一次对话循环的结果
type Reply struct {
	Turn        chat.Turn         `json:"turn"`
	Corrections []correction.Note `json:"corrections"`
	Audio       *speechmodel.Clip `json:"audio,omitempty"`
	SpeechError string            `json:"speechError,omitempty"`
}

// Options 控制朗读方式
type Options struct {
	Speak    bool
	Voice    string
	Language string
}

// Service 串联会话、导师控制器、纠错提取和语音合成。
type Service struct {
	sessions   Sessions
	controller *tutor.Controller
	completer  tutor.Completer
	speech     Speech
	logger     zerolog.Logger
}

// NewService 创建对话服务，speech 可以为 nil。
func NewService(sessions Sessions, controller *tutor.Controller, completer tutor.Completer, speech Speech) *Service {
	return &Service{
		sessions:   sessions,
		controller: controller,
		completer:  completer,
		speech:     speech,
		logger:     log.With().Str("component", "conversation").Logger(),
	}
}

// SpeechEnabled 报告是否可以朗读和识别
func (s *Service) SpeechEnabled() bool {
	return s.speech != nil && s.speech.Enabled()
}

// Say 处理一条学习者输入。会话不存在返回 chatservice.ErrSessionNotFound，
// 对话失败返回 *tutor.DialogueError。
func (s *Service) Say(ctx context.Context, sessionID, text string, opts Options) (*Reply, error) {
	var turn chat.Turn
	err := s.sessions.Do(ctx, sessionID, func(session *chat.Session) error {
		var err error
		turn, err = s.controller.HandleUtterance(ctx, session, text, s.completer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sessionID, turn, opts), nil
}

// Retry 为上一次失败留下的用户输入重新请求回复，没有待处理输入时返回 tutor.ErrNothingPending。
func (s *Service) Retry(ctx context.Context, sessionID string, opts Options) (*Reply, error) {
	var turn chat.Turn
	err := s.sessions.Do(ctx, sessionID, func(session *chat.Session) error {
		var err error
		turn, err = s.controller.RetryPending(ctx, session, s.completer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, sessionID, turn, opts), nil
}

// Listen 先识别录音再把识别结果当作输入。识别失败返回 CaptureUnavailable，不追加任何轮次。
func (s *Service) Listen(ctx context.Context, sessionID string, req speechmodel.ASRRequest, opts Options) (string, *Reply, error) {
	if !s.SpeechEnabled() {
		return "", nil, speechsvc.CaptureError(speechsvc.ErrNotConfigured)
	}

	req.SessionID = sessionID
	resp, err := s.speech.Transcribe(ctx, &req)
	if err != nil {
		return "", nil, speechsvc.CaptureError(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", nil, speechsvc.CaptureError(speechsvc.ErrNotUnderstood)
	}

	reply, err := s.Say(ctx, sessionID, text, opts)
	return text, reply, err
}

// finish 在会话锁外提取纠错并按需合成语音，合成失败不回滚已记录的回复。
func (s *Service) finish(ctx context.Context, sessionID string, turn chat.Turn, opts Options) *Reply {
	reply := &Reply{
		Turn:        turn,
		Corrections: correction.Extract(turn.Text),
	}
	if reply.Corrections == nil {
		reply.Corrections = []correction.Note{}
	}
	if !opts.Speak {
		return reply
	}

	if !s.SpeechEnabled() {
		reply.SpeechError = speechsvc.SynthesisError(speechsvc.ErrNotConfigured).Message
		return reply
	}

	audio, err := s.speech.Synthesize(ctx, &speechmodel.TTSRequest{
		SessionID: sessionID,
		Text:      turn.Text,
		Voice:     opts.Voice,
		Language:  opts.Language,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("reply synthesis failed")
		reply.SpeechError = speechsvc.SynthesisError(err).Message
		return reply
	}
	reply.Audio = speechmodel.ClipOf(turn.Text, audio)
	return reply
}

// IsNotFound 判断错误是否为会话不存在
func IsNotFound(err error) bool {
	return errors.Is(err, chatservice.ErrSessionNotFound)
}
