// Package handler 提供 HTTP 请求处理器
package handler

import (
	stderrors "errors"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/application/quota"
	"ai-novel-orchestrator/internal/interfaces/http/dto"
	"ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/logger"
)

// writeError 按应用错误码输出响应，未知错误记录日志并返回 500
func writeError(c *gin.Context, err error, action string) {
	if !errors.IsAppError(err) {
		logger.Error(c.Request.Context(), "failed to "+action, err)
		dto.InternalError(c, "failed to "+action)
		return
	}

	appErr := errors.AsAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), "failed to "+action, err, "code", appErr.Code)
	}

	var rateErr quota.RateLimitExceededError
	if stderrors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rateErr.RetryAfter.Seconds()))))
	}

	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
