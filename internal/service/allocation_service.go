package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"cred-stock/internal/adapter/notification"
	coreCredential "cred-stock/internal/core/credential"
	"cred-stock/internal/dto"
	"cred-stock/internal/model"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

// claimMaxRetries 并发冲突时的认领重试次数, 超过后按池空处理
const claimMaxRetries = 3

// AllocationService 凭据分配器
// 订单工作流确认前调用 CheckAvailability 预检, 确认后按订单行调用 Claim
type AllocationService struct {
	credRepo    *repository.CredentialRepository
	productRepo *repository.ProductRepository
	sm          *coreCredential.StateMachine
	delivery    *DeliveryService
	notifier    notification.Notifier
	logger      *zap.Logger
}

func NewAllocationService(
	credRepo *repository.CredentialRepository,
	productRepo *repository.ProductRepository,
	sm *coreCredential.StateMachine,
	delivery *DeliveryService,
	notifier notification.Notifier,
	logger *zap.Logger,
) *AllocationService {
	return &AllocationService{
		credRepo:    credRepo,
		productRepo: productRepo,
		sm:          sm,
		delivery:    delivery,
		notifier:    notifier,
		logger:      logger,
	}
}

// CheckAvailability 订单确认前的库存预检, 纯读不落任何变更
// 同一产品多行会先合并需求量; 每个缺口产品单独返回一条记录
func (s *AllocationService) CheckAvailability(lines []dto.AvailabilityRequest) ([]dto.Shortage, error) {
	// 按产品合并需求量
	needed := map[int64]int64{}
	for _, line := range lines {
		needed[line.ProductID] += line.Needed
	}

	productIDs := lo.Keys(needed)
	var shortages []dto.Shortage
	for _, productID := range productIDs {
		available, err := s.credRepo.CountAvailable(productID)
		if err != nil {
			return nil, err
		}
		if available >= needed[productID] {
			continue
		}

		shortage := dto.Shortage{
			ProductID: productID,
			Needed:    needed[productID],
			Available: available,
			Missing:   needed[productID] - available,
		}
		if product, err := s.productRepo.GetByID(productID); err == nil {
			shortage.ProductName = product.Name
		}
		shortages = append(shortages, shortage)
	}

	// 输出顺序与产品ID无关时不稳定, 排一下便于展示
	shortages = lo.Filter(shortages, func(s dto.Shortage, _ int) bool { return s.Missing > 0 })
	return shortages, nil
}

// Claim 为一个订单行认领一条凭据
//
// 保证:
// - 幂等: 订单行已有绑定时原样返回, 不会再占用第二条
// - FIFO: 总是取最早入库的可用凭据
// - 并发安全: 状态机内乐观锁, 冲突时有界重试, 两个并发请求不会拿到同一条
// - 池空返回 ErrNotAvailable, 属预期结果, 调用方决定如何升级
func (s *AllocationService) Claim(ctx context.Context, req *dto.ClaimRequest) (*model.Credential, error) {
	// 幂等保护: 该订单行已经绑定过凭据
	if existing, err := s.credRepo.GetByOrderLine(req.OrderLineID); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info("订单行已有凭据, 跳过分配",
			zap.String("order_line_id", req.OrderLineID),
			zap.Int64("credential_id", existing.ID))
		return existing, nil
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest, "expires_at 格式错误, 需要RFC3339", err)
		}
		expiresAt = &t
	}

	for attempt := 0; attempt < claimMaxRetries; attempt++ {
		cred, err := s.credRepo.FindOldestAvailable(req.ProductID)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			return nil, pkgErrors.ErrNotAvailable
		}

		err = s.sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, coreCredential.SourceInside,
			coreCredential.WithOperator(req.Operator),
			coreCredential.WithNote(fmt.Sprintf("分配给订单行 %s", req.OrderLineID)),
			coreCredential.WithModelEffects(func(c *model.Credential) {
				now := time.Now()
				c.OrderLineID = &req.OrderLineID
				c.AssignedAt = &now
				c.ExpiresAt = expiresAt
				if req.CustomerEmail != "" {
					c.CustomerEmail = &req.CustomerEmail
				}
				if req.CustomerName != "" {
					c.CustomerName = &req.CustomerName
				}
			}))
		if err == nil {
			s.logger.Info("凭据分配成功",
				zap.Int64("credential_id", cred.ID),
				zap.Int64("product_id", req.ProductID),
				zap.String("login", cred.Login),
				zap.String("order_line_id", req.OrderLineID))

			// 交付与分配解耦: 邮件失败只记录, 不回滚分配
			if s.delivery != nil {
				if derr := s.delivery.DeliverCredential(ctx, cred); derr != nil {
					s.logger.Warn("凭据交付失败, 可通过重发接口补发",
						zap.Int64("credential_id", cred.ID),
						zap.Error(derr))
				}
			}
			return cred, nil
		}

		// 另一个并发认领抢走了这条凭据: 换下一条重试
		if errors.Is(err, coreCredential.ErrStateConflict) || pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition) {
			s.logger.Warn("认领冲突, 重试",
				zap.Int64("credential_id", cred.ID),
				zap.Int("attempt", attempt+1))
			continue
		}

		// 并发的同订单行请求在唯一键上撞车: 返回先到者的绑定
		if existing, gerr := s.credRepo.GetByOrderLine(req.OrderLineID); gerr == nil && existing != nil {
			return existing, nil
		}

		return nil, err
	}

	// 重试耗尽, 按池空处理(调用方可重新预检后再试)
	return nil, pkgErrors.ErrNotAvailable
}

// ClaimBatch 订单确认后逐行认领
// 行与行隔离: 一行失败不影响其他行, 失败行单独上报
func (s *AllocationService) ClaimBatch(ctx context.Context, req *dto.ClaimBatchRequest) *dto.ClaimBatchResponse {
	resp := &dto.ClaimBatchResponse{
		Results: make([]dto.ClaimResult, 0, len(req.Lines)),
	}

	for i := range req.Lines {
		line := req.Lines[i]
		result := dto.ClaimResult{OrderLineID: line.OrderLineID}

		cred, err := s.Claim(ctx, &line)
		if err != nil {
			resp.Failed++
			result.Error = err.Error()
			if appErr, ok := err.(*pkgErrors.AppError); ok {
				result.Code = appErr.Code
			} else {
				result.Code = pkgErrors.CodeInternalError
			}

			// 预检通过后池被并发耗尽: 通知管理员人工跟进, 不中断其他行
			if pkgErrors.IsCode(err, pkgErrors.CodeNotAvailable) {
				s.notifyPoolExhausted(ctx, line.ProductID, line.OrderLineID)
			}
		} else {
			resp.Succeeded++
			result.Code = pkgErrors.CodeSuccess
			result.Credential = dto.NewCredentialResponse(cred, nil)
		}
		resp.Results = append(resp.Results, result)
	}

	return resp
}

// notifyPoolExhausted 确认后认领发现池空, 给管理员发通知
func (s *AllocationService) notifyPoolExhausted(ctx context.Context, productID int64, orderLineID string) {
	if s.notifier == nil {
		return
	}

	productName := fmt.Sprintf("#%d", productID)
	if product, err := s.productRepo.GetByID(productID); err == nil {
		productName = product.Name
	}

	msg := &notification.NotificationMessage{
		Type:      notification.NotifyPoolExhausted,
		Title:     "⚠️ 凭据池已空",
		Content:   fmt.Sprintf("**产品**: %s\n**订单行**: %s\n请补充凭据后手动分配", productName, orderLineID),
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"product_id":    productID,
			"order_line_id": orderLineID,
			"color":         "red",
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("池空通知发送失败", zap.Error(err))
	}
}
