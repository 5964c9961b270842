package repository

import (
	"gorm.io/gorm"

	"cred-stock/internal/model"
	pkgErrors "cred-stock/pkg/responses"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// CreateTx 在指定事务内写审计记录(与状态变更同一事务)
func (r *AuditLogRepository) CreateTx(tx *gorm.DB, entry *model.AuditLog) error {
	if err := tx.Create(entry).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "写入审计记录失败", err)
	}
	return nil
}

// ListByCredential 查询某凭据的审计记录, 新的在前
func (r *AuditLogRepository) ListByCredential(credentialID int64) ([]*model.AuditLog, error) {
	var list []*model.AuditLog
	err := r.db.Where("credential_id = ?", credentialID).Order("id DESC").Find(&list).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询审计记录失败", err)
	}
	return list, nil
}
