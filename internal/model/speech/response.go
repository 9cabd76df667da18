package speech

import (
	"encoding/base64"
	"time"
)

// ASRResponse 语音识别响应
type ASRResponse struct {
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Duration  int64     `json:"duration"` // milliseconds
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration"` // milliseconds
	Format    string    `json:"format"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AudioBase64 返回 base64 编码的音频，供 JSON 响应内嵌播放。
func (r *TTSResponse) AudioBase64() string {
	if r == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(r.AudioData)
}

// Clip 是内嵌在 JSON 中的一段音频
type Clip struct {
	Text   string `json:"text"`
	Format string `json:"format"`
	Audio  string `json:"audio"`
}

// ClipOf 将合成结果转为 Clip
func ClipOf(text string, r *TTSResponse) *Clip {
	if r == nil {
		return nil
	}
	return &Clip{Text: text, Format: r.Format, Audio: r.AudioBase64()}
}

// Pronunciation 单词与例句两段发音
type Pronunciation struct {
	Term    string `json:"term"`
	Word    *Clip  `json:"word"`
	Example *Clip  `json:"example,omitempty"`
}
