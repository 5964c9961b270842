package model

import (
	"time"

	"cred-stock/pkg/constants"
)

const CredentialTableName = "service_credentials"

// Credential 数字服务凭据(一条记录对应某个服务产品下的一个登录账号)
//
// 说明:
// - secret_encrypted: AES-GCM(base64) 密文, 密钥由部署方配置提供
// - order_line_id: 仅在 state=assigned 时有值, 全局唯一(一个订单行最多绑定一条凭据)
// - active=false 的记录不参与分配和统计, 保留用于审计
type Credential struct {
	BaseModel

	ProductID int64  `gorm:"not null;uniqueIndex:uk_product_login;index:idx_product_state_active,priority:1" json:"product_id"`
	Login     string `gorm:"size:128;not null;uniqueIndex:uk_product_login" json:"login"`

	SecretEncrypted string `gorm:"column:secret_encrypted;type:text;not null" json:"-"`

	State constants.CredentialState `gorm:"size:16;not null;default:available;index:idx_product_state_active,priority:2;index:idx_state_expires,priority:1" json:"state"`

	OrderLineID   *string `gorm:"column:order_line_id;size:64;uniqueIndex:uk_order_line" json:"order_line_id,omitempty"`
	CustomerEmail *string `gorm:"size:128" json:"customer_email,omitempty"`
	CustomerName  *string `gorm:"size:128" json:"customer_name,omitempty"`

	AssignedAt *time.Time `gorm:"column:assigned_at" json:"assigned_at,omitempty"`
	ExpiresAt  *time.Time `gorm:"column:expires_at;index:idx_state_expires,priority:2" json:"expires_at,omitempty"`

	// 凭据交付结果(邮件发送), 发送失败不回滚分配
	DeliveryStatus constants.DeliveryStatus `gorm:"size:16;not null;default:none" json:"delivery_status"`
	DeliveryError  *string                  `gorm:"type:text" json:"delivery_error,omitempty"`
	DeliveredAt    *time.Time               `json:"delivered_at,omitempty"`

	Active bool   `gorm:"not null;default:true;index:idx_product_state_active,priority:3" json:"active"`
	Notes  string `gorm:"type:text" json:"notes,omitempty"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (Credential) TableName() string {
	return CredentialTableName
}

// IsBound 是否仍绑定订单行
func (c *Credential) IsBound() bool {
	return c.OrderLineID != nil && *c.OrderLineID != ""
}

// ContactEmail 返回客户联系邮箱, 无则为空串
func (c *Credential) ContactEmail() string {
	if c.CustomerEmail == nil {
		return ""
	}
	return *c.CustomerEmail
}
