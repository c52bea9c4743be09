package handler

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/application/render"
	"ai-novel-orchestrator/internal/domain/entity"
	"ai-novel-orchestrator/internal/interfaces/http/dto"
	"ai-novel-orchestrator/pkg/errors"
	"ai-novel-orchestrator/pkg/logger"
)

// NovelService 生成任务用例
type NovelService interface {
	Submit(ctx context.Context, identity string, req entity.Request) (string, error)
	GetStatus(ctx context.Context, id string) (entity.StatusView, error)
	GetResult(ctx context.Context, id string) (*entity.Task, error)
	Cancel(ctx context.Context, id string) error
}

// ExportCache 导出结果缓存
type ExportCache interface {
	GetOrRender(ctx context.Context, key string, render func() ([]byte, error)) ([]byte, error)
}

// NovelHandler 小说生成任务处理器
type NovelHandler struct {
	novels NovelService
	cache  ExportCache
	keyFn  func(taskID, format string) string
}

// NewNovelHandler 创建处理器，cache 为 nil 时每次导出都重新渲染
func NewNovelHandler(novels NovelService, cache ExportCache, keyFn func(taskID, format string) string) *NovelHandler {
	return &NovelHandler{novels: novels, cache: cache, keyFn: keyFn}
}

// Submit 创建生成任务
// @Summary 创建生成任务
// @Tags Novels
// @Accept json
// @Produce json
// @Param X-User-ID header string false "调用方身份"
// @Param body body dto.GenerateNovelRequest true "生成请求"
// @Success 202 {object} dto.Response[dto.SubmitNovelResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse "配额耗尽"
// @Failure 503 {object} dto.ErrorResponse "任务过多"
// @Router /v1/novels [post]
func (h *NovelHandler) Submit(c *gin.Context) {
	var req dto.GenerateNovelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.ErrorWithDetail(c, 400, "invalid request body", &dto.ErrorDetail{
			ErrorCode: string(errors.CodeInvalidRequest),
			Details:   err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	identity := dto.BindIdentity(c)
	taskID, err := h.novels.Submit(ctx, identity, req.ToEntity())
	if err != nil {
		writeError(c, err, "submit task")
		return
	}

	logger.Info(ctx, "novel task accepted", "task_id", taskID, "identity", identity)
	dto.Accepted(c, &dto.SubmitNovelResponse{TaskID: taskID})
}

// GetStatus 查询任务状态
// @Summary 查询任务状态
// @Tags Novels
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[entity.StatusView]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/novels/{id} [get]
func (h *NovelHandler) GetStatus(c *gin.Context) {
	view, err := h.novels.GetStatus(c.Request.Context(), dto.BindTaskID(c))
	if err != nil {
		writeError(c, err, "get task status")
		return
	}
	dto.Success(c, view)
}

// GetResult 获取已完成任务的完整结果
// @Summary 获取任务结果
// @Tags Novels
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.NovelResultResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "任务未完成"
// @Router /v1/novels/{id}/result [get]
func (h *NovelHandler) GetResult(c *gin.Context) {
	task, err := h.novels.GetResult(c.Request.Context(), dto.BindTaskID(c))
	if err != nil {
		writeError(c, err, "get task result")
		return
	}
	dto.Success(c, dto.ToNovelResultResponse(task))
}

// Cancel 取消任务
// @Summary 取消任务
// @Tags Novels
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} dto.Response[dto.CancelNovelResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "任务已结束"
// @Router /v1/novels/{id}/cancel [post]
func (h *NovelHandler) Cancel(c *gin.Context) {
	taskID := dto.BindTaskID(c)
	if err := h.novels.Cancel(c.Request.Context(), taskID); err != nil {
		writeError(c, err, "cancel task")
		return
	}
	dto.Success(c, &dto.CancelNovelResponse{TaskID: taskID, Cancelled: true})
}

// Export 导出已完成任务
// @Summary 导出小说
// @Tags Novels
// @Produce octet-stream
// @Param id path string true "任务 ID"
// @Param format query string false "markdown|plain|zhihu|json"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse "任务未完成"
// @Router /v1/novels/{id}/export [get]
func (h *NovelHandler) Export(c *gin.Context) {
	format, err := render.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, err, "export task")
		return
	}

	ctx := c.Request.Context()
	task, err := h.novels.GetResult(ctx, dto.BindTaskID(c))
	if err != nil {
		writeError(c, err, "export task")
		return
	}

	build := func() ([]byte, error) { return render.Render(task, format) }
	var body []byte
	if h.cache != nil && h.keyFn != nil {
		body, err = h.cache.GetOrRender(ctx, h.keyFn(task.ID, string(format)), build)
	} else {
		body, err = build()
	}
	if err != nil {
		writeError(c, err, "export task")
		return
	}

	name := render.Filename(task, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Data(200, render.ContentType(format), body)
}
