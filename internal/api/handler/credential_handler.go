package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"cred-stock/internal/dto"
	"cred-stock/internal/service"
	"cred-stock/pkg/responses"
	"cred-stock/pkg/utils"
)

type CredentialHandler struct {
	credentialService *service.CredentialService
	deliveryService   *service.DeliveryService
}

func NewCredentialHandler(credentialService *service.CredentialService, deliveryService *service.DeliveryService) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
		deliveryService:   deliveryService,
	}
}

// Create 录入凭据
// @Summary 录入凭据
// @Tags 凭据管理
// @Accept json
// @Produce json
// @Param request body dto.CreateCredentialRequest true "录入凭据请求"
// @Success 200 {object} dto.CredentialResponse
// @Router /api/v1/credentials [post]
func (h *CredentialHandler) Create(c *gin.Context) {
	var req dto.CreateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	resp, err := h.credentialService.Create(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// List 凭据列表
// @Summary 凭据列表
// @Tags 凭据管理
// @Produce json
// @Param product_id query int false "产品ID"
// @Param state query string false "状态" Enums(available, assigned, expired, pending_reset)
// @Param active query bool false "是否启用"
// @Param keyword query string false "登录名模糊搜索"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} responses.PageResponse
// @Router /api/v1/credentials [get]
func (h *CredentialHandler) List(c *gin.Context) {
	var q dto.ListCredentialQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	list, total, err := h.credentialService.List(&q)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.PageSuccess(c, list, total, q.GetPage(), q.GetPageSize())
}

// Get 凭据详情
// @Summary 凭据详情
// @Tags 凭据管理
// @Produce json
// @Param id path int true "凭据ID"
// @Success 200 {object} dto.CredentialResponse
// @Router /api/v1/credentials/{id} [get]
func (h *CredentialHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.credentialService.Get(id)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Update 更新凭据(登录名/密码/备注)
// @Summary 更新凭据
// @Tags 凭据管理
// @Accept json
// @Produce json
// @Param id path int true "凭据ID"
// @Param request body dto.UpdateCredentialRequest true "更新凭据请求"
// @Success 200 {object} dto.CredentialResponse
// @Router /api/v1/credentials/{id} [put]
func (h *CredentialHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
		return
	}

	resp, err := h.credentialService.Update(id, &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Deactivate 停用凭据(软删除)
// @Summary 停用凭据
// @Tags 凭据管理
// @Produce json
// @Param id path int true "凭据ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id} [delete]
func (h *CredentialHandler) Deactivate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.credentialService.Deactivate(id); err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, gin.H{"message": "凭据已停用"})
}

// RevealSecret 查看明文密码(特权接口)
// @Summary 查看明文密码
// @Tags 凭据管理
// @Produce json
// @Param id path int true "凭据ID"
// @Param operator query string false "操作人"
// @Success 200 {object} dto.CredentialSecretResponse
// @Router /api/v1/credentials/{id}/secret [get]
func (h *CredentialHandler) RevealSecret(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.credentialService.RevealSecret(id, c.Query("operator"))
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// MarkPendingReset 标记等待重置
// @Summary 标记等待重置 (assigned -> pending_reset)
// @Tags 凭据流转
// @Accept json
// @Produce json
// @Param id path int true "凭据ID"
// @Param request body dto.TransitionRequest false "操作人信息"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id}/pending-reset [post]
func (h *CredentialHandler) MarkPendingReset(c *gin.Context) {
	h.transition(c, h.credentialService.MarkPendingReset)
}

// Reset 重置完成回池
// @Summary 重置完成回池 (pending_reset -> available)
// @Tags 凭据流转
// @Accept json
// @Produce json
// @Param id path int true "凭据ID"
// @Param request body dto.TransitionRequest false "操作人信息"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id}/reset [post]
func (h *CredentialHandler) Reset(c *gin.Context) {
	h.transition(c, h.credentialService.Reset)
}

// ForceExpire 强制过期
// @Summary 强制过期 (assigned -> expired)
// @Tags 凭据流转
// @Accept json
// @Produce json
// @Param id path int true "凭据ID"
// @Param request body dto.TransitionRequest false "操作人信息"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id}/expire [post]
func (h *CredentialHandler) ForceExpire(c *gin.Context) {
	h.transition(c, h.credentialService.ForceExpire)
}

// MakeAvailable 强制释放回池
// @Summary 强制释放回池 (assigned -> available, 仍绑定订单行时拒绝)
// @Tags 凭据流转
// @Accept json
// @Produce json
// @Param id path int true "凭据ID"
// @Param request body dto.TransitionRequest false "操作人信息"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id}/make-available [post]
func (h *CredentialHandler) MakeAvailable(c *gin.Context) {
	h.transition(c, h.credentialService.MakeAvailable)
}

// ListAuditLogs 凭据流转历史
// @Summary 凭据流转历史
// @Tags 凭据管理
// @Produce json
// @Param id path int true "凭据ID"
// @Success 200 {array} dto.AuditLogResponse
// @Router /api/v1/credentials/{id}/audits [get]
func (h *CredentialHandler) ListAuditLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	logs, err := h.credentialService.ListAuditLogs(id)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, logs)
}

// Resend 重发凭据邮件
// @Summary 重发凭据邮件(仅限assigned)
// @Tags 凭据管理
// @Produce json
// @Param id path int true "凭据ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/credentials/{id}/resend [post]
func (h *CredentialHandler) Resend(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.deliveryService.Resend(c.Request.Context(), id); err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, gin.H{"message": "邮件已重发"})
}

// transition 运营状态流转的公共壳: 解析ID和操作人, 执行指定流转
func (h *CredentialHandler) transition(c *gin.Context, fn func(ctx context.Context, id int64, op *dto.OperatorRequest) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			responses.ErrorWithCode(c, responses.CodeBadRequest, "请求参数错误: "+utils.FormatValidationError(err))
			return
		}
	}

	if err := fn(c.Request.Context(), id, &req.OperatorRequest); err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, gin.H{"message": "状态流转成功"})
}

// parseID 解析路径中的资源ID
func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		responses.ErrorWithCode(c, responses.CodeBadRequest, "无效的ID")
		return 0, false
	}
	return id, true
}
