package dto

// CreateProductRequest 创建产品请求
type CreateProductRequest struct {
	Name             string `json:"name" binding:"required,max=128"`
	Description      string `json:"description"`
	IsDigitalService *bool  `json:"is_digital_service"` // 缺省true
	AutoAssign       *bool  `json:"auto_assign"`        // 缺省true
}

// ProductResponse 产品响应
type ProductResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	IsDigitalService bool   `json:"is_digital_service"`
	AutoAssign       bool   `json:"auto_assign"`
	Active           bool   `json:"active"`
	CreatedAt        string `json:"created_at"`
}

// ProductStatsResponse 产品凭据统计
type ProductStatsResponse struct {
	ProductID    int64 `json:"product_id"`
	Total        int64 `json:"total"`
	Available    int64 `json:"available"`
	Assigned     int64 `json:"assigned"`
	Expired      int64 `json:"expired"`
	PendingReset int64 `json:"pending_reset"`
}
