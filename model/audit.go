package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records state-changing capability calls: room creation, trades,
// match lifecycle.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	PlayerID   *uint64        `gorm:"index:idx_audit_player" json:"player_id"`
	Interface  string         `gorm:"size:32;not null" json:"interface"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Request    datatypes.JSON `json:"request"`
	Response   datatypes.JSON `json:"response"`
	Status     string         `gorm:"size:24" json:"status"`
	Error      string         `gorm:"type:text" json:"error"`
	RemoteAddr string         `gorm:"size:64" json:"remote_addr"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
