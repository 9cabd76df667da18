package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/config"
	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// NewCompleter 根据配置创建对应供应商的补全实现。
func NewCompleter(ctx context.Context, cfg config.AIConfig) (tutor.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAICompleter(cfg)
	case config.ProviderArk:
		return NewArkCompleter(ctx, cfg)
	default:
		return nil, fmt.Errorf("no AI provider configured: set OPENAI_API_KEY or ARK_API_KEY with Model")
	}
}

// Unconfigured 在缺少供应商配置时使用，每次调用都返回 ErrProviderRejected。
func Unconfigured() tutor.Completer {
	return tutor.CompleterFunc(func(context.Context, []tutor.Message) (string, error) {
		return "", fmt.Errorf("%w: no completion provider configured, set OPENAI_API_KEY or ARK_API_KEY", tutor.ErrProviderRejected)
	})
}

// ChainCompleter 通过 eino 提示词链调用对话模型
type ChainCompleter struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
	logger  zerolog.Logger
}

var _ tutor.Completer = (*ChainCompleter)(nil)

// NewArkCompleter 使用 Ark 模型构建补全链。
func NewArkCompleter(ctx context.Context, cfg config.AIConfig) (*ChainCompleter, error) {
	if !cfg.ArkEnabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	var topP *float32
	if cfg.TopP != nil {
		val := float32(*cfg.TopP)
		topP = &val
	}

	// 单次请求，失败交给对话层分类
	retries := 0
	timeout := cfg.Timeout

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.ArkBaseURL,
		Region:      cfg.ArkRegion,
		APIKey:      cfg.ArkAPIKey,
		AccessKey:   cfg.ArkAccessKey,
		SecretKey:   cfg.ArkSecretKey,
		Model:       cfg.ArkModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
		Timeout:     &timeout,
		RetryTimes:  &retries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	return NewChainCompleter(ctx, chatModel, cfg.Timeout)
}

// NewChainCompleter 基于任意 eino ChatModel 编译提示词链
func NewChainCompleter(ctx context.Context, chatModel model.ChatModel, timeout time.Duration) (*ChainCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainCompleter{
		chain:   runnable,
		timeout: timeout,
		logger:  log.With().Str("component", "ai").Str("provider", "ark").Logger(),
	}, nil
}

// Complete 实现 tutor.Completer
func (c *ChainCompleter) Complete(ctx context.Context, messages []tutor.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	response, err := c.chain.Invoke(ctx, buildChainInput(messages))
	if err != nil {
		return "", classify(err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: nil chat response", tutor.ErrProviderRejected)
	}

	c.logger.Debug().Int("context", len(messages)).Int("length", len(response.Content)).Msg("generated response")
	return response.Content, nil
}

// buildChainInput 将对话上下文拆成 system 与 history 两部分。
func buildChainInput(messages []tutor.Message) map[string]any {
	var system string
	history := make([]*schema.Message, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			if system == "" {
				system = msg.Text
			} else {
				system = strings.Join([]string{system, msg.Text}, "\n\n")
			}
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.RoleTutor:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}

	return map[string]any{
		"system":  system,
		"history": history,
	}
}
