package speech

import "time"

// Config 语音服务配置
type Config struct {
	// 火山引擎凭证
	AppID       string `json:"appId"`
	AccessToken string `json:"-"`

	TTSURL         string `json:"ttsUrl"`
	ASRURL         string `json:"asrUrl"`
	ConcurrentMode bool   `json:"concurrentMode"` // ASR并发版（false为小时版）

	ASRLanguage string `json:"asrLanguage"`

	TTSVoice      string  `json:"ttsVoice"`
	TTSResourceID string  `json:"ttsResourceId,omitempty"` // 为空时按音色推断
	TTSSpeed      float32 `json:"ttsSpeed"`
	TTSVolume     float32 `json:"ttsVolume"`
	TTSLanguage   string  `json:"ttsLanguage"`

	Timeout time.Duration `json:"timeout"`
}
