package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind 失败分类
type ErrorKind int

const (
	// KindTransient 重试可能成功：超时、限流、服务端错误、输出格式异常
	KindTransient ErrorKind = iota + 1
	// KindPermanent 重试无意义：鉴权失败、请求被拒、预算错误、重试耗尽
	KindPermanent
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CallError 已分类的模型调用错误
type CallError struct {
	Kind     ErrorKind
	Provider string
	Attempts int
	// TokensUsed 失败前已计费的 token，调用方仍需计入任务用量
	TokensUsed int64
	Err        error
}

func (e *CallError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm %s failure (provider=%s, attempts=%d): %v", e.Kind, e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("llm %s failure (attempts=%d): %v", e.Kind, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Transient 构造可重试错误
func Transient(err error) *CallError {
	return &CallError{Kind: KindTransient, Err: err}
}

// Permanent 构造不可重试错误
func Permanent(err error) *CallError {
	return &CallError{Kind: KindPermanent, Err: err}
}

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient
	}
	return false
}

// IsPermanent 判断错误是否不可重试
func IsPermanent(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind == KindPermanent
	}
	return false
}

// BilledTokens 返回错误携带的已计费 token
func BilledTokens(err error) int64 {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.TokensUsed
	}
	return 0
}

// Classify 将提供商错误归类，已分类的错误原样返回
func Classify(err error) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	if errors.Is(err, context.Canceled) {
		return Permanent(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(err)
	}

	msg := strings.ToLower(err.Error())
	for _, s := range permanentMarkers {
		if strings.Contains(msg, s) {
			return Permanent(err)
		}
	}
	for _, s := range transientMarkers {
		if strings.Contains(msg, s) {
			return Transient(err)
		}
	}
	// 未识别的错误按可重试处理，由重试上限兜底
	return Transient(err)
}

var permanentMarkers = []string{
	"status code: 400",
	"status code: 401",
	"status code: 403",
	"status code: 404",
	"invalid api key",
	"incorrect api key",
	"unauthorized",
	"authentication",
	"permission denied",
	"invalid_request_error",
	"context_length_exceeded",
	"maximum context length",
	"content_filter",
	"insufficient_quota",
	"not found in llm config",
}

var transientMarkers = []string{
	"status code: 429",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"unexpected eof",
	"server error",
	"overloaded",
	"temporarily unavailable",
}
