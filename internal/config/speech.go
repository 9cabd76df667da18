package config

import (
	"os"
	"strings"
	"time"

	speechmodel "github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
)

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	TTSURL         string
	ASRURL         string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSResourceID  string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        time.Duration
	Enabled        bool
}

// ClientConfig 转换为语音客户端使用的配置。
func (c SpeechConfig) ClientConfig() *speechmodel.Config {
	return &speechmodel.Config{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		TTSURL:         c.TTSURL,
		ASRURL:         c.ASRURL,
		ConcurrentMode: c.ConcurrentMode,
		ASRLanguage:    c.ASRLanguage,
		TTSVoice:       c.TTSVoice,
		TTSResourceID:  c.TTSResourceID,
		TTSSpeed:       c.TTSSpeed,
		TTSVolume:      c.TTSVolume,
		TTSLanguage:    c.TTSLanguage,
		Timeout:        c.Timeout,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseDurationEnv("SPEECH_TIMEOUT", 30*time.Second)
	if err != nil {
		return SpeechConfig{}, err
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	enabled, err := parseBoolEnv("SPEECH_ENABLED", appID != "" && accessToken != "")
	if err != nil {
		return SpeechConfig{}, err
	}
	// 缺少凭证时无法启用
	if appID == "" || accessToken == "" {
		enabled = false
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	return SpeechConfig{
		AppID:          appID,
		AccessToken:    accessToken,
		TTSURL:         getEnvOrDefault("SPEECH_TTS_URL", "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"),
		ASRURL:         getEnvOrDefault("SPEECH_ASR_URL", "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"),
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", "en_female_amanda_mars_bigtts"),
		TTSResourceID:  strings.TrimSpace(os.Getenv("SPEECH_TTS_RESOURCE_ID")),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:        timeout,
		Enabled:        enabled,
	}, nil
}
