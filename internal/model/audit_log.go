package model

import (
	"time"

	"gorm.io/datatypes"

	"cred-stock/pkg/constants"
)

const AuditLogTableName = "credential_audit_logs"

// AuditLog 凭据状态流转审计记录
// 每次成功的状态变更写一条: 谁/何时/从哪个状态到哪个状态
type AuditLog struct {
	ID           int64                     `gorm:"primaryKey;autoIncrement" json:"id"`
	CredentialID int64                     `gorm:"not null;index" json:"credential_id"`
	FromState    constants.CredentialState `gorm:"size:16;not null" json:"from_state"`
	ToState      constants.CredentialState `gorm:"size:16;not null" json:"to_state"`
	Operator     string                    `gorm:"size:64;not null;default:system" json:"operator"`
	Note         string                    `gorm:"type:text" json:"note,omitempty"`
	Details      datatypes.JSON            `gorm:"type:json" json:"details,omitempty"` // 订单行/过期时间等上下文
	CreatedAt    time.Time                 `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return AuditLogTableName
}
