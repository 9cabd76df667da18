package speech

import (
	"path/filepath"
	"strings"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string `json:"sessionId"`
	Audio     []byte `json:"-"`
	Format    string `json:"format"`   // wav, pcm, mp3, ogg
	Language  string `json:"language"` // en-US, zh-CN, etc.
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed"`  // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"` // 音量 0.0-1.0
	Format    string  `json:"format"` // mp3, ogg_opus, pcm
	Language  string  `json:"language"`
}

// PronounceRequest 单词发音请求，例句可选
type PronounceRequest struct {
	Term    string `json:"term"`
	Example string `json:"example,omitempty"`
	Voice   string `json:"voice,omitempty"`
}

// FormatFromFilename 从文件名推断音频格式，未知扩展名按 wav 处理
func FormatFromFilename(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
