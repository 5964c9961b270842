package handler

import (
	"github.com/gin-gonic/gin"

	"cred-stock/internal/dto"
	"cred-stock/internal/service"
	"cred-stock/pkg/responses"
	"cred-stock/pkg/utils"
)

type ProductHandler struct {
	productService *service.ProductService
}

func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// Create 创建产品
// @Summary 创建产品
// @Tags 产品管理
// @Accept json
// @Produce json
// @Param request body dto.CreateProductRequest true "创建产品请求"
// @Success 200 {object} dto.ProductResponse
// @Router /api/v1/products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	resp, err := h.productService.Create(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// List 产品列表
// @Summary 产品列表(仅active)
// @Tags 产品管理
// @Produce json
// @Success 200 {array} dto.ProductResponse
// @Router /api/v1/products [get]
func (h *ProductHandler) List(c *gin.Context) {
	list, err := h.productService.List()
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, list)
}

// Get 产品详情
// @Summary 产品详情
// @Tags 产品管理
// @Produce json
// @Param id path int true "产品ID"
// @Success 200 {object} dto.ProductResponse
// @Router /api/v1/products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.productService.Get(id)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Stats 产品凭据统计
// @Summary 产品凭据统计(按状态分组)
// @Tags 产品管理
// @Produce json
// @Param id path int true "产品ID"
// @Success 200 {object} dto.ProductStatsResponse
// @Router /api/v1/products/{id}/stats [get]
func (h *ProductHandler) Stats(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.productService.Stats(id)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}
