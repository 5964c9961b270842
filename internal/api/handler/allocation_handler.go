package handler

import (
	"github.com/gin-gonic/gin"

	"cred-stock/internal/dto"
	"cred-stock/internal/service"
	"cred-stock/pkg/responses"
	"cred-stock/pkg/utils"
)

type AllocationHandler struct {
	allocationService *service.AllocationService
}

func NewAllocationHandler(allocationService *service.AllocationService) *AllocationHandler {
	return &AllocationHandler{allocationService: allocationService}
}

// CheckAvailability 库存预检
// @Summary 库存预检(订单确认前调用, 纯读)
// @Tags 凭据分配
// @Accept json
// @Produce json
// @Param request body dto.CheckAvailabilityRequest true "预检请求"
// @Success 200 {object} dto.CheckAvailabilityResponse
// @Router /api/v1/allocation/check [post]
func (h *AllocationHandler) CheckAvailability(c *gin.Context) {
	var req dto.CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	shortages, err := h.allocationService.CheckAvailability(req.Lines)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, &dto.CheckAvailabilityResponse{
		Sufficient: len(shortages) == 0,
		Shortages:  shortages,
	})
}

// Claim 认领凭据
// @Summary 为一个订单行认领凭据(幂等)
// @Tags 凭据分配
// @Accept json
// @Produce json
// @Param request body dto.ClaimRequest true "认领请求"
// @Success 200 {object} dto.CredentialResponse
// @Router /api/v1/allocation/claim [post]
func (h *AllocationHandler) Claim(c *gin.Context) {
	var req dto.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	cred, err := h.allocationService.Claim(c.Request.Context(), &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, dto.NewCredentialResponse(cred, nil))
}

// ClaimBatch 批量认领
// @Summary 订单确认后批量认领(逐行隔离)
// @Tags 凭据分配
// @Accept json
// @Produce json
// @Param request body dto.ClaimBatchRequest true "批量认领请求"
// @Success 200 {object} dto.ClaimBatchResponse
// @Router /api/v1/allocation/claim-batch [post]
func (h *AllocationHandler) ClaimBatch(c *gin.Context) {
	var req dto.ClaimBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	resp := h.allocationService.ClaimBatch(c.Request.Context(), &req)
	if resp.Failed > 0 {
		responses.PartialSuccess(c, "部分订单行分配失败", resp)
		return
	}

	responses.Success(c, resp)
}
