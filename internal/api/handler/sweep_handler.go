package handler

import (
	"github.com/gin-gonic/gin"

	"cred-stock/internal/scheduler"
	"cred-stock/pkg/responses"
)

type SweepHandler struct {
	scheduler *scheduler.Scheduler
}

func NewSweepHandler(scheduler *scheduler.Scheduler) *SweepHandler {
	return &SweepHandler{scheduler: scheduler}
}

// Run 手动触发到期扫描
// @Summary 手动触发到期扫描
// @Tags 到期扫描
// @Produce json
// @Success 200 {object} dto.SweepResult
// @Router /api/v1/sweep/run [post]
func (h *SweepHandler) Run(c *gin.Context) {
	result, err := h.scheduler.TriggerSweep(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, result)
}

// Warn 手动触发到期提醒
// @Summary 手动触发到期提醒
// @Tags 到期扫描
// @Produce json
// @Success 200 {object} dto.SweepResult
// @Router /api/v1/sweep/warn [post]
func (h *SweepHandler) Warn(c *gin.Context) {
	result, err := h.scheduler.TriggerWarn(c.Request.Context())
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, result)
}
