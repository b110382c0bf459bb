package model

import "time"

// JobStatus 派生任务在账本中的状态.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobActive    JobStatus = "ACTIVE"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// JobEvent 触发状态变化的生命周期事件.
type JobEvent string

const (
	EventEnqueued  JobEvent = "enqueued"
	EventActive    JobEvent = "active"
	EventCompleted JobEvent = "completed"
	EventFailed    JobEvent = "failed"
)

// Rank 状态序，账本只允许向更高的序推进.
func (s JobStatus) Rank() int {
	switch s {
	case JobPending:
		return 0
	case JobActive:
		return 1
	case JobCompleted, JobFailed:
		return 2
	default:
		return -1
	}
}

// Terminal 是否为终态.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Predecessors 返回可以迁移到 s 的状态集合. ACTIVE 包含自身，用于重投计数.
func (s JobStatus) Predecessors() []JobStatus {
	switch s {
	case JobActive:
		return []JobStatus{JobPending, JobActive}
	case JobCompleted, JobFailed:
		return []JobStatus{JobPending, JobActive}
	default:
		return nil
	}
}

// Event 状态对应的事件名.
func (s JobStatus) Event() JobEvent {
	switch s {
	case JobPending:
		return EventEnqueued
	case JobActive:
		return EventActive
	case JobCompleted:
		return EventCompleted
	default:
		return EventFailed
	}
}

// TranscodingJob 账本中的一条任务记录，JobID 等于队列消息 ID.
type TranscodingJob struct {
	ID         uint       `gorm:"primaryKey"                            json:"-"`
	JobID      string     `gorm:"size:64;not null;uniqueIndex"          json:"job_id"`
	AssetID    string     `gorm:"size:36;not null;index"                json:"asset_id"`
	WorkerName string     `gorm:"size:64;not null;index:idx_worker_status" json:"worker_name"`
	Status     JobStatus  `gorm:"size:16;not null;index:idx_worker_status" json:"status"`
	EventName  JobEvent   `gorm:"size:16"                               json:"event_name"`
	Attempts   int        `gorm:"not null;default:0"                    json:"attempts"`
	LastError  string     `gorm:"type:text"                             json:"last_error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName 表名.
func (TranscodingJob) TableName() string { return "transcoding_jobs" }
