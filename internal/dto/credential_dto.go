package dto

import (
	"time"

	"cred-stock/internal/model"
)

// CreateCredentialRequest 创建凭据请求
type CreateCredentialRequest struct {
	ProductID int64  `json:"product_id" binding:"required,min=1"`
	Login     string `json:"login" binding:"required,max=128"`
	Secret    string `json:"secret" binding:"required"` // 明文, 入库前加密
	Notes     string `json:"notes"`
}

// UpdateCredentialRequest 更新凭据请求
// 不允许通过这里改 state/order_line_id, 状态变更走流转接口
type UpdateCredentialRequest struct {
	Login  string  `json:"login" binding:"omitempty,max=128"`
	Secret string  `json:"secret"` // 留空表示不改密码
	Notes  *string `json:"notes"`
}

// CredentialResponse 凭据响应(不含密码)
type CredentialResponse struct {
	ID             int64   `json:"id"`
	ProductID      int64   `json:"product_id"`
	ProductName    string  `json:"product_name,omitempty"`
	Login          string  `json:"login"`
	State          string  `json:"state"`
	OrderLineID    *string `json:"order_line_id,omitempty"`
	CustomerEmail  *string `json:"customer_email,omitempty"`
	CustomerName   *string `json:"customer_name,omitempty"`
	AssignedAt     string  `json:"assigned_at,omitempty"`
	ExpiresAt      string  `json:"expires_at,omitempty"`
	DeliveryStatus string  `json:"delivery_status"`
	DeliveryError  *string `json:"delivery_error,omitempty"`
	DeliveredAt    string  `json:"delivered_at,omitempty"`
	Active         bool    `json:"active"`
	Notes          string  `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// NewCredentialResponse 模型转响应, 密文永不外露
func NewCredentialResponse(cred *model.Credential, product *model.Product) *CredentialResponse {
	resp := &CredentialResponse{
		ID:             cred.ID,
		ProductID:      cred.ProductID,
		Login:          cred.Login,
		State:          string(cred.State),
		OrderLineID:    cred.OrderLineID,
		CustomerEmail:  cred.CustomerEmail,
		CustomerName:   cred.CustomerName,
		DeliveryStatus: string(cred.DeliveryStatus),
		DeliveryError:  cred.DeliveryError,
		Active:         cred.Active,
		Notes:          cred.Notes,
		CreatedAt:      cred.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      cred.UpdatedAt.Format(time.RFC3339),
	}
	if product != nil {
		resp.ProductName = product.Name
	}
	if cred.AssignedAt != nil {
		resp.AssignedAt = cred.AssignedAt.Format(time.RFC3339)
	}
	if cred.ExpiresAt != nil {
		resp.ExpiresAt = cred.ExpiresAt.Format(time.RFC3339)
	}
	if cred.DeliveredAt != nil {
		resp.DeliveredAt = cred.DeliveredAt.Format(time.RFC3339)
	}
	return resp
}

// CredentialSecretResponse 含明文密码的凭据响应(仅限特权接口)
type CredentialSecretResponse struct {
	ID     int64  `json:"id"`
	Login  string `json:"login"`
	Secret string `json:"secret"`
}

// ListCredentialQuery 凭据列表查询参数
type ListCredentialQuery struct {
	PageQuery
	ProductID *int64 `form:"product_id"`
	State     string `form:"state" binding:"omitempty,oneof=available assigned expired pending_reset"`
	Active    *bool  `form:"active"`
}

// TransitionRequest 运营状态流转请求(pending-reset/reset/expire/make-available)
type TransitionRequest struct {
	OperatorRequest
}

// AuditLogResponse 审计记录响应
type AuditLogResponse struct {
	ID        int64  `json:"id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Operator  string `json:"operator"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}
