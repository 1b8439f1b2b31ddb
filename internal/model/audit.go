package model

import (
	"time"
)

const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
)

// AuditLog 审计日志表
// 每次引擎操作（无论成功失败）写入一条，只追加不修改
type AuditLog struct {
	ID           string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID       string         `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Action       string         `gorm:"type:varchar(64);index;not null" json:"action"`
	Status       string         `gorm:"type:varchar(20);not null" json:"status"` // success / failed
	Metadata     map[string]any `gorm:"serializer:json" json:"metadata,omitempty"`
	ErrorMessage string         `gorm:"type:varchar(512)" json:"error_message,omitempty"` // 失败时记录错误信息
	CreatedAt    time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "credit_audit_log"
}
