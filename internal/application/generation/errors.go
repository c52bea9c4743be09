package generation

import (
	"errors"

	"ai-novel-orchestrator/internal/infrastructure/llm"
	apperrors "ai-novel-orchestrator/pkg/errors"
)

// ErrInterrupted 执行被停止，任务未进入终态
var ErrInterrupted = errors.New("generation interrupted")

// 任务失败码
const (
	FailureCancelled = "CANCELLED"
	FailureMalformed = "MALFORMED"
	FailureBudget    = "BUDGET"
	FailurePermanent = "PERMANENT"
	FailureStore     = "STORE"
	FailureInternal  = "INTERNAL"
)

// failureCode 选取错误链中最具体的失败码
func failureCode(err error) string {
	switch {
	case apperrors.IsCode(err, apperrors.CodeCancelled):
		return FailureCancelled
	case apperrors.IsCode(err, apperrors.CodeMalformed):
		return FailureMalformed
	case apperrors.IsCode(err, apperrors.CodeBudget):
		return FailureBudget
	case apperrors.IsCode(err, apperrors.CodePermanent):
		return FailurePermanent
	case apperrors.IsCode(err, apperrors.CodeStoreError):
		return FailureStore
	}
	return FailureInternal
}

// callFailure 将模型调用错误转换为任务的永久失败
func callFailure(err error) error {
	return apperrors.ErrPermanent.WithDetail(err.Error()).WithError(llm.Classify(err))
}

func malformedFailure(err error) error {
	return apperrors.ErrPermanent.WithDetail(err.Error()).
		WithError(apperrors.New(apperrors.CodeMalformed, "model output malformed").WithError(err))
}

func budgetFailure(used, ceiling int64) error {
	return apperrors.ErrPermanent.
		WithError(apperrors.Newf(apperrors.CodeBudget, "model call exceeded the per-request token ceiling: used=%d ceiling=%d", used, ceiling))
}

// failureMessage 任务失败时对外展示的信息
func failureMessage(err error) string {
	var app *apperrors.AppError
	if errors.As(err, &app) {
		if app.Detail != "" {
			return app.Detail
		}
		if app.Err != nil {
			return app.Err.Error()
		}
		return app.Message
	}
	return err.Error()
}
