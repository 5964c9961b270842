package dto

// AvailabilityRequest 可用量预检: 某产品需要的凭据数量
type AvailabilityRequest struct {
	ProductID int64 `json:"product_id" binding:"required,min=1"`
	Needed    int64 `json:"needed" binding:"required,min=1"`
}

// CheckAvailabilityRequest 订单确认前的整单预检
type CheckAvailabilityRequest struct {
	Lines []AvailabilityRequest `json:"lines" binding:"required,min=1,dive"`
}

// Shortage 缺口记录: 每个不足的产品单独一条
type Shortage struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Needed      int64  `json:"needed"`
	Available   int64  `json:"available"`
	Missing     int64  `json:"missing"`
}

// CheckAvailabilityResponse 预检结果
type CheckAvailabilityResponse struct {
	Sufficient bool       `json:"sufficient"`
	Shortages  []Shortage `json:"shortages,omitempty"`
}

// ClaimRequest 为一个订单行认领一条凭据
type ClaimRequest struct {
	ProductID     int64  `json:"product_id" binding:"required,min=1"`
	OrderLineID   string `json:"order_line_id" binding:"required,max=64"`
	CustomerEmail string `json:"customer_email" binding:"omitempty,email"`
	CustomerName  string `json:"customer_name" binding:"omitempty,max=128"`
	ExpiresAt     string `json:"expires_at" binding:"omitempty"` // RFC3339, 可选
	Operator      string `json:"operator"`
}

// ClaimBatchRequest 订单确认后逐行认领
type ClaimBatchRequest struct {
	Lines []ClaimRequest `json:"lines" binding:"required,min=1,dive"`
}

// ClaimResult 单行认领结果
type ClaimResult struct {
	OrderLineID string              `json:"order_line_id"`
	Credential  *CredentialResponse `json:"credential,omitempty"`
	Code        int                 `json:"code"`
	Error       string              `json:"error,omitempty"`
}

// ClaimBatchResponse 批量认领结果, 行与行互不影响
type ClaimBatchResponse struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []ClaimResult `json:"results"`
}
