package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// arkStatusPattern 从 Ark SDK 的错误文本中提取状态码
var arkStatusPattern = regexp.MustCompile(`status code: (\d{3})`)

// classify 为供应商错误包上对应的 tutor 哨兵错误，原始错误仍保留在链上。
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tutor.ErrProviderRejected) || errors.Is(err, tutor.ErrProviderUnavailable) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", tutor.ErrProviderUnavailable, err)
	}

	status, ok := statusOf(err)
	if !ok {
		if m := arkStatusPattern.FindStringSubmatch(err.Error()); m != nil {
			status, _ = strconv.Atoi(m[1])
			ok = true
		}
	}
	if ok {
		return fmt.Errorf("%w: %w", sentinelForStatus(status), err)
	}

	// 网络错误及无法识别的错误都视为暂时不可用
	return fmt.Errorf("%w: %w", tutor.ErrProviderUnavailable, err)
}

// sentinelForStatus 将 HTTP 状态码映射到错误分类。408 与 5xx 可重试，
// 其余 4xx（包括 429 配额错误）需要修改账号或配置。
func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusRequestTimeout:
		return tutor.ErrProviderUnavailable
	case status >= 500:
		return tutor.ErrProviderUnavailable
	case status >= 400:
		return tutor.ErrProviderRejected
	default:
		return tutor.ErrProviderUnavailable
	}
}
