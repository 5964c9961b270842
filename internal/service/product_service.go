package service

import (
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"cred-stock/internal/dto"
	"cred-stock/internal/model"
	"cred-stock/internal/repository"
)

// ProductService 数字服务产品管理
type ProductService struct {
	productRepo *repository.ProductRepository
	credRepo    *repository.CredentialRepository
	logger      *zap.Logger
}

func NewProductService(
	productRepo *repository.ProductRepository,
	credRepo *repository.CredentialRepository,
	logger *zap.Logger,
) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		credRepo:    credRepo,
		logger:      logger,
	}
}

func (s *ProductService) Create(req *dto.CreateProductRequest) (*dto.ProductResponse, error) {
	product := &model.Product{
		Name:             req.Name,
		Description:      req.Description,
		IsDigitalService: lo.FromPtrOr(req.IsDigitalService, true),
		AutoAssign:       lo.FromPtrOr(req.AutoAssign, true),
		Active:           true,
	}
	if err := s.productRepo.Create(product); err != nil {
		return nil, err
	}

	s.logger.Info("产品已创建", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return toProductResponse(product), nil
}

func (s *ProductService) Get(id int64) (*dto.ProductResponse, error) {
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

func (s *ProductService) List() ([]*dto.ProductResponse, error) {
	list, err := s.productRepo.List()
	if err != nil {
		return nil, err
	}
	return lo.Map(list, func(p *model.Product, _ int) *dto.ProductResponse {
		return toProductResponse(p)
	}), nil
}

// Stats 产品凭据库存统计(按状态分组, 仅active凭据)
func (s *ProductService) Stats(id int64) (*dto.ProductStatsResponse, error) {
	if _, err := s.productRepo.GetByID(id); err != nil {
		return nil, err
	}

	stats, err := s.credRepo.Stats(id)
	if err != nil {
		return nil, err
	}
	return &dto.ProductStatsResponse{
		ProductID:    stats.ProductID,
		Total:        stats.Total,
		Available:    stats.Available,
		Assigned:     stats.Assigned,
		Expired:      stats.Expired,
		PendingReset: stats.PendingReset,
	}, nil
}

func toProductResponse(p *model.Product) *dto.ProductResponse {
	return &dto.ProductResponse{
		ID:               p.ID,
		Name:             p.Name,
		Description:      p.Description,
		IsDigitalService: p.IsDigitalService,
		AutoAssign:       p.AutoAssign,
		Active:           p.Active,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
}
