package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/config"
	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// OpenAICompleter 调用 OpenAI Chat Completions 接口
type OpenAICompleter struct {
	client      oai.Client
	model       string
	temperature *float64
	topP        *float64
	maxTokens   *int
	logger      zerolog.Logger
}

var _ tutor.Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter 根据配置创建客户端。关闭 SDK 自带重试，
// 失败在一次尝试后直接返回给学习者。
func NewOpenAICompleter(cfg config.AIConfig) (*OpenAICompleter, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if cfg.OpenAIModel == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithMaxRetries(0),
	}
	if cfg.OpenAIBaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}))
	}

	return &OpenAICompleter{
		client:      oai.NewClient(reqOpts...),
		model:       cfg.OpenAIModel,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		maxTokens:   cfg.MaxTokens,
		logger:      log.With().Str("component", "ai").Str("provider", "openai").Logger(),
	}, nil
}

// Complete 实现 tutor.Completer
func (p *OpenAICompleter) Complete(ctx context.Context, messages []tutor.Message) (string, error) {
	started := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(messages))
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: empty choices in response", tutor.ErrProviderRejected)
	}

	content := resp.Choices[0].Message.Content
	p.logger.Debug().
		Str("model", p.model).
		Int64("promptTokens", resp.Usage.PromptTokens).
		Int64("completionTokens", resp.Usage.CompletionTokens).
		Dur("elapsed", time.Since(started)).
		Msg("chat completion")
	return content, nil
}

func (p *OpenAICompleter) buildParams(messages []tutor.Message) oai.ChatCompletionNewParams {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, oai.SystemMessage(m.Text))
		case chat.RoleUser:
			out = append(out, oai.UserMessage(m.Text))
		case chat.RoleTutor:
			out = append(out, oai.AssistantMessage(m.Text))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: out,
	}
	if p.temperature != nil {
		params.Temperature = param.NewOpt(*p.temperature)
	}
	if p.topP != nil {
		params.TopP = param.NewOpt(*p.topP)
	}
	if p.maxTokens != nil && *p.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(*p.maxTokens))
	}
	return params
}

func statusOf(err error) (int, bool) {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
