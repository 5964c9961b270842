package repository

import (
	"errors"

	"gorm.io/gorm"

	"cred-stock/internal/model"
	pkgErrors "cred-stock/pkg/responses"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(p *model.Product) error {
	if err := r.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pkgErrors.New(pkgErrors.CodeValidationError, "产品名称已存在")
		}
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建产品失败", err)
	}
	return nil
}

func (r *ProductRepository) GetByID(id int64) (*model.Product, error) {
	var p model.Product
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询产品失败", err)
	}
	return &p, nil
}

func (r *ProductRepository) Update(p *model.Product) error {
	if err := r.db.Save(p).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新产品失败", err)
	}
	return nil
}

func (r *ProductRepository) List() ([]*model.Product, error) {
	var list []*model.Product
	if err := r.db.Where("active = ?", true).Order("name").Find(&list).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询产品列表失败", err)
	}
	return list, nil
}
