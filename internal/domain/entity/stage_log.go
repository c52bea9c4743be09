package entity

import "time"

// StageLogStatus 阶段执行结果
type StageLogStatus string

const (
	StageLogSuccess StageLogStatus = "success"
	StageLogFailed  StageLogStatus = "failed"
)

// StageLog 单个阶段的执行流水，由事件归档服务落库
type StageLog struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventID    string         `json:"event_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	TaskID     string         `json:"task_id" gorm:"type:uuid;index;not null"`
	Identity   string         `json:"identity" gorm:"type:varchar(128);index;not null"`
	Stage      string         `json:"stage" gorm:"type:varchar(32);index;not null"`
	Chapter    int            `json:"chapter,omitempty" gorm:"not null;default:0"`
	Status     StageLogStatus `json:"status" gorm:"type:varchar(16);not null"`
	Tokens     int64          `json:"tokens" gorm:"not null;default:0"`
	ModelCalls int            `json:"model_calls" gorm:"not null;default:0"`
	DurationMs int64          `json:"duration_ms" gorm:"not null;default:0"`
	Error      string         `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (StageLog) TableName() string {
	return "stage_logs"
}

// StageStats 按阶段聚合的统计
type StageStats struct {
	Stage         string  `json:"stage"`
	Runs          int64   `json:"runs"`
	Failures      int64   `json:"failures"`
	TotalTokens   int64   `json:"total_tokens"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
