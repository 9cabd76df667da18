package speech

import (
	"fmt"
	"strings"

	speechmodel "github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
)

// resolveCredentials 返回规范化后的 AppID 与 AccessToken，缺失时给出明确错误。
func resolveCredentials(cfg *speechmodel.Config) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("%w: speech config is nil", ErrNotConfigured)
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", fmt.Errorf("%w: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN are required", ErrNotConfigured)
	}
	return appID, token, nil
}
