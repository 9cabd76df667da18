package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured 缺少语音服务凭证
	ErrNotConfigured = errors.New("speech service is not configured")
	// ErrNoAudio 没有可识别的音频
	ErrNoAudio = errors.New("no speech detected")
	// ErrNotUnderstood 识别结果为空
	ErrNotUnderstood = errors.New("could not understand audio")
	// ErrEmptyText 合成文本为空
	ErrEmptyText = errors.New("text to synthesize is empty")
)

// UpstreamError 是火山引擎返回的业务错误。
type UpstreamError struct {
	Op      string
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream error %d: %s", e.Op, e.Code, e.Message)
}
