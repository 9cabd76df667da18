package speech

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// Synthesizer 文字转语音
type Synthesizer interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Transcriber 语音转文字
type Transcriber interface {
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
}

// FailureRecorder 记录语音调用失败次数
type FailureRecorder interface {
	SpeechFailed(operation string)
}

// Service 语音服务核心业务逻辑
type Service struct {
	config   *speech.Config
	tts      Synthesizer
	asr      Transcriber
	recorder FailureRecorder
	logger   zerolog.Logger
}

// Option 配置 Service
type Option func(*Service)

// WithClients 替换底层客户端，测试中注入假实现。
func WithClients(tts Synthesizer, asr Transcriber) Option {
	return func(s *Service) {
		if tts != nil {
			s.tts = tts
		}
		if asr != nil {
			s.asr = asr
		}
	}
}

// WithRecorder 设置失败计数器
func WithRecorder(r FailureRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService 创建语音服务实例。config 为 nil 时服务不可用，所有调用返回 ErrNotConfigured。
func NewService(config *speech.Config, opts ...Option) *Service {
	s := &Service{
		config: config,
		logger: log.With().Str("component", "speech").Logger(),
	}
	if config != nil {
		s.tts = NewVolcengineTTSClient(config)
		s.asr = NewVolcengineASRClient(config)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled 报告是否可以调用语音服务
func (s *Service) Enabled() bool {
	return s != nil && s.tts != nil && s.asr != nil
}

// Synthesize 文字转语音
func (s *Service) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	resp, err := s.tts.Synthesize(ctx, req)
	if err != nil {
		s.failed("synthesize", err)
		return nil, err
	}
	return resp, nil
}

// Transcribe 语音转文字
func (s *Service) Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if len(req.Audio) == 0 {
		return nil, ErrNoAudio
	}
	resp, err := s.asr.Transcribe(ctx, req)
	if err != nil {
		s.failed("transcribe", err)
		return nil, err
	}
	return resp, nil
}

// Pronounce 并发合成单词和例句两段发音，例句为空时只合成单词。
func (s *Service) Pronounce(ctx context.Context, req speech.PronounceRequest) (*speech.Pronunciation, error) {
	term := strings.TrimSpace(req.Term)
	if term == "" {
		return nil, ErrEmptyText
	}
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	example := strings.TrimSpace(req.Example)
	out := &speech.Pronunciation{Term: term}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := s.Synthesize(gctx, &speech.TTSRequest{Text: term, Voice: req.Voice})
		if err != nil {
			return err
		}
		out.Word = speech.ClipOf(term, resp)
		return nil
	})
	if example != "" {
		g.Go(func() error {
			resp, err := s.Synthesize(gctx, &speech.TTSRequest{Text: example, Voice: req.Voice})
			if err != nil {
				return err
			}
			out.Example = speech.ClipOf(example, resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) failed(op string, err error) {
	// 用户没说话不算服务故障
	if errors.Is(err, ErrNoAudio) || errors.Is(err, ErrNotUnderstood) || errors.Is(err, ErrEmptyText) {
		return
	}
	s.logger.Warn().Err(err).Str("operation", op).Msg("speech call failed")
	if s.recorder != nil {
		s.recorder.SpeechFailed(op)
	}
}

// CaptureError 将识别失败转换为 CaptureUnavailable。
func CaptureError(err error) *tutor.DialogueError {
	switch {
	case errors.Is(err, ErrNoAudio):
		return tutor.NewError(tutor.KindCaptureUnavailable, "no speech detected, please try again", err)
	case errors.Is(err, ErrNotUnderstood):
		return tutor.NewError(tutor.KindCaptureUnavailable, "could not understand audio, please try again", err)
	default:
		return tutor.NewError(tutor.KindCaptureUnavailable, "speech recognition is unavailable, please type instead", err)
	}
}

// SynthesisError 将合成失败转换为 SynthesisFailed，不影响已记录的回复。
func SynthesisError(err error) *tutor.DialogueError {
	return tutor.NewError(tutor.KindSynthesisFailed, "could not play the reply aloud", err)
}
