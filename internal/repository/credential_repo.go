package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"cred-stock/internal/model"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create 创建凭据
// 入库前校验: login去空格非空, 密文非空; (product_id, login) 冲突返回校验错误
func (r *CredentialRepository) Create(c *model.Credential) error {
	c.Login = strings.TrimSpace(c.Login)
	if c.Login == "" {
		return pkgErrors.ErrEmptyLogin
	}
	if c.SecretEncrypted == "" {
		return pkgErrors.ErrEmptySecret
	}
	if c.State == "" {
		c.State = constants.CredentialStateAvailable
	}
	if c.DeliveryStatus == "" {
		c.DeliveryStatus = constants.DeliveryStatusNone
	}

	if err := r.db.Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgErrors.ErrLoginExists
		}
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建凭据失败", err)
	}
	return nil
}

func (r *CredentialRepository) GetByID(id int64) (*model.Credential, error) {
	var c model.Credential
	if err := r.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据失败", err)
	}
	return &c, nil
}

// GetByOrderLine 查询某订单行已绑定的凭据, 未绑定返回 (nil, nil)
func (r *CredentialRepository) GetByOrderLine(orderLineID string) (*model.Credential, error) {
	var c model.Credential
	err := r.db.Where("order_line_id = ?", orderLineID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询订单行凭据失败", err)
	}
	return &c, nil
}

// Update 保存凭据全部字段
func (r *CredentialRepository) Update(c *model.Credential) error {
	c.Login = strings.TrimSpace(c.Login)
	if c.Login == "" {
		return pkgErrors.ErrEmptyLogin
	}
	if c.SecretEncrypted == "" {
		return pkgErrors.ErrEmptySecret
	}

	if err := r.db.Save(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgErrors.ErrLoginExists
		}
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新凭据失败", err)
	}
	return nil
}

// Deactivate 停用凭据(引擎不做物理删除)
func (r *CredentialRepository) Deactivate(id int64) error {
	result := r.db.Model(&model.Credential{}).Where("id = ?", id).Update("active", false)
	if result.Error != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "停用凭据失败", result.Error)
	}
	if result.RowsAffected == 0 {
		return pkgErrors.ErrRecordNotFound
	}
	return nil
}

// ListQuery 凭据列表过滤条件
type ListQuery struct {
	ProductID *int64
	State     string
	Active    *bool
	Keyword   string // login 模糊匹配
	Offset    int
	Limit     int
}

func (r *CredentialRepository) List(q *ListQuery, opts ...QueryOption) ([]*model.Credential, int64, error) {
	query := r.db.Model(&model.Credential{})
	if q.ProductID != nil {
		query = query.Where("product_id = ?", *q.ProductID)
	}
	if q.State != "" {
		query = query.Where("state = ?", q.State)
	}
	if q.Active != nil {
		query = query.Where("active = ?", *q.Active)
	}
	if q.Keyword != "" {
		query = query.Where("login LIKE ?", "%"+q.Keyword+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计凭据失败", err)
	}

	for _, opt := range opts {
		query = opt(query)
	}

	var list []*model.Credential
	if err := query.Order("product_id, state, login").Offset(q.Offset).Limit(q.Limit).Find(&list).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据列表失败", err)
	}
	return list, total, nil
}

// CountAvailable 统计某产品可分配凭据数量(仅active)
func (r *CredentialRepository) CountAvailable(productID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Credential{}).
		Where("product_id = ? AND state = ? AND active = ?", productID, constants.CredentialStateAvailable, true).
		Count(&count).Error
	if err != nil {
		return 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计可用凭据失败", err)
	}
	return count, nil
}

// FindOldestAvailable 取某产品最早入库的可用凭据(FIFO), 没有返回 (nil, nil)
func (r *CredentialRepository) FindOldestAvailable(productID int64) (*model.Credential, error) {
	var c model.Credential
	err := r.db.
		Where("product_id = ? AND state = ? AND active = ?", productID, constants.CredentialStateAvailable, true).
		Order("created_at ASC, id ASC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询可用凭据失败", err)
	}
	return &c, nil
}

// FindExpired 查询已过期仍处于assigned的凭据
func (r *CredentialRepository) FindExpired(now time.Time) ([]*model.Credential, error) {
	var list []*model.Credential
	err := r.db.
		Where("state = ? AND active = ? AND expires_at IS NOT NULL AND expires_at < ?",
			constants.CredentialStateAssigned, true, now).
		Order("expires_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询过期凭据失败", err)
	}
	return list, nil
}

// FindExpiringSoon 查询将在 [now, until) 内过期的assigned凭据
func (r *CredentialRepository) FindExpiringSoon(now, until time.Time) ([]*model.Credential, error) {
	var list []*model.Credential
	err := r.db.
		Where("state = ? AND active = ? AND expires_at IS NOT NULL AND expires_at > ? AND expires_at <= ?",
			constants.CredentialStateAssigned, true, now, until).
		Order("expires_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询即将过期凭据失败", err)
	}
	return list, nil
}

// Stats 按状态统计某产品的active凭据
func (r *CredentialRepository) Stats(productID int64) (*model.ProductStats, error) {
	type row struct {
		State constants.CredentialState
		Count int64
	}
	var rows []row
	err := r.db.Model(&model.Credential{}).
		Select("state, COUNT(*) AS count").
		Where("product_id = ? AND active = ?", productID, true).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计凭据失败", err)
	}

	stats := &model.ProductStats{ProductID: productID}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.State {
		case constants.CredentialStateAvailable:
			stats.Available = r.Count
		case constants.CredentialStateAssigned:
			stats.Assigned = r.Count
		case constants.CredentialStateExpired:
			stats.Expired = r.Count
		case constants.CredentialStatePendingReset:
			stats.PendingReset = r.Count
		}
	}
	return stats, nil
}
