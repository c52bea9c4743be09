package dto

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ai-novel-orchestrator/internal/domain/entity"
)

// IdentityHeader 调用方身份头
const IdentityHeader = "X-User-ID"

// AnonymousIdentity 未携带身份头时使用
const AnonymousIdentity = "anonymous"

// GenerateNovelRequest 创建生成任务请求，零值字段由服务端补默认值
type GenerateNovelRequest struct {
	Theme        string `json:"theme"`
	Genre        string `json:"genre,omitempty"`
	Style        string `json:"style,omitempty"`
	WordCount    int    `json:"word_count,omitempty"`
	ChapterCount int    `json:"chapter_count,omitempty"`
}

// ToEntity 转换为领域请求
func (r *GenerateNovelRequest) ToEntity() entity.Request {
	return entity.Request{
		Theme:        r.Theme,
		Genre:        strings.TrimSpace(r.Genre),
		Style:        strings.TrimSpace(r.Style),
		WordCount:    r.WordCount,
		ChapterCount: r.ChapterCount,
	}
}

// BindTaskID 绑定路径中的任务 ID
func BindTaskID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}

// BindIdentity 读取调用方身份
func BindIdentity(c *gin.Context) string {
	if id := c.GetString("identity"); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetHeader(IdentityHeader)); id != "" {
		return id
	}
	return AnonymousIdentity
}

// BindSince 解析 since 查询参数（时长，如 24h），缺省或非法时使用 def
func BindSince(c *gin.Context, now time.Time, def time.Duration) time.Time {
	d, err := time.ParseDuration(c.Query("since"))
	if err != nil || d <= 0 {
		d = def
	}
	return now.Add(-d)
}
