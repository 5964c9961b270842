package model

const ProductTableName = "digital_products"

// Product 可售卖的数字服务产品(Spotify/Netflix等)
// 凭据统计(total/available/assigned)按需从凭据表查询, 不落库
type Product struct {
	BaseModel

	Name        string `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	IsDigitalService bool `gorm:"not null;default:true" json:"is_digital_service"` // 是否需要分配凭据
	AutoAssign       bool `gorm:"not null;default:true" json:"auto_assign"`        // 订单确认后是否自动分配

	Active bool `gorm:"not null;default:true;index" json:"active"`
}

func (Product) TableName() string {
	return ProductTableName
}

// ProductStats 产品凭据聚合统计(派生数据, 查询时计算)
type ProductStats struct {
	ProductID    int64 `json:"product_id"`
	Total        int64 `json:"total"`
	Available    int64 `json:"available"`
	Assigned     int64 `json:"assigned"`
	Expired      int64 `json:"expired"`
	PendingReset int64 `json:"pending_reset"`
}
