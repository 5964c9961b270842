package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cred-stock/internal/adapter/notification"
	coreCredential "cred-stock/internal/core/credential"
	"cred-stock/internal/dto"
	"cred-stock/internal/model"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
)

// SweepService 到期扫描
// 由定时任务触发, 也可通过管理接口手动触发; 扫描天然幂等,
// 已流转的凭据第二次不会再命中
type SweepService struct {
	credRepo    *repository.CredentialRepository
	productRepo *repository.ProductRepository
	sm          *coreCredential.StateMachine
	notifier    notification.Notifier
	logger      *zap.Logger
}

func NewSweepService(
	credRepo *repository.CredentialRepository,
	productRepo *repository.ProductRepository,
	sm *coreCredential.StateMachine,
	notifier notification.Notifier,
	logger *zap.Logger,
) *SweepService {
	return &SweepService{
		credRepo:    credRepo,
		productRepo: productRepo,
		sm:          sm,
		notifier:    notifier,
		logger:      logger,
	}
}

// SweepExpired 把到期的assigned凭据流转为expired
// 单条失败不中断整轮扫描, 全部处理完后汇总成一条管理员通知
func (s *SweepService) SweepExpired(ctx context.Context) (*dto.SweepResult, error) {
	now := time.Now()
	expired, err := s.credRepo.FindExpired(now)
	if err != nil {
		return nil, err
	}

	result := &dto.SweepResult{Scanned: len(expired)}
	if len(expired) == 0 {
		s.logger.Debug("到期扫描: 无到期凭据")
		return result, nil
	}

	var swept []*model.Credential
	for _, cred := range expired {
		err := s.sm.ChangeState(ctx, cred, constants.CredentialStateExpired, coreCredential.SourceInside,
			coreCredential.WithOperator("system"),
			coreCredential.WithNote("到期自动流转"))
		if err != nil {
			// 并发冲突或单条数据异常, 跳过本条, 下一轮扫描会重试
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("credential %d (%s): %v", cred.ID, cred.Login, err))
			s.logger.Error("到期流转失败",
				zap.Int64("credential_id", cred.ID),
				zap.Error(err))
			continue
		}
		result.Swept++
		swept = append(swept, cred)
	}

	s.logger.Info("到期扫描完成",
		zap.Int("scanned", result.Scanned),
		zap.Int("swept", result.Swept),
		zap.Int("failed", result.Failed))

	// 整轮扫描汇总成一条通知, 不逐条打扰管理员
	if len(swept) > 0 {
		s.notifySwept(ctx, swept, result)
	}
	return result, nil
}

// WarnExpiringSoon 对将在 daysBefore 天内到期的凭据逐条发提醒, 不做状态变更
// 提醒是针对单个订单的续费跟进, 所以不汇总, 一条凭据一条消息
func (s *SweepService) WarnExpiringSoon(ctx context.Context, daysBefore int) (*dto.SweepResult, error) {
	if daysBefore <= 0 {
		daysBefore = 3
	}

	now := time.Now()
	until := now.Add(time.Duration(daysBefore) * 24 * time.Hour)
	expiring, err := s.credRepo.FindExpiringSoon(now, until)
	if err != nil {
		return nil, err
	}

	result := &dto.SweepResult{Scanned: len(expiring)}
	for _, cred := range expiring {
		msg := &notification.NotificationMessage{
			Type:      notification.NotifyExpiringSoon,
			Title:     fmt.Sprintf("⏰ 凭据将在 %d 天内到期: %s", daysBefore, cred.Login),
			Content:   s.buildCredentialList([]*model.Credential{cred}),
			Timestamp: now,
			Extra: map[string]interface{}{
				"credential_id": cred.ID,
				"color":         "yellow",
			},
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("credential %d (%s): %v", cred.ID, cred.Login, err))
			s.logger.Error("到期提醒通知发送失败",
				zap.Int64("credential_id", cred.ID),
				zap.Error(err))
			continue
		}
		result.Swept++
	}
	result.Notified = result.Swept > 0
	return result, nil
}

// notifySwept 发送过期汇总通知
func (s *SweepService) notifySwept(ctx context.Context, swept []*model.Credential, result *dto.SweepResult) {
	content := s.buildCredentialList(swept)
	if result.Failed > 0 {
		content += fmt.Sprintf("\n另有 %d 条流转失败, 等待下一轮扫描重试", result.Failed)
	}

	msg := &notification.NotificationMessage{
		Type:      notification.NotifyCredentialsExpired,
		Title:     fmt.Sprintf("📋 %d 条凭据已到期, 请人工处理", len(swept)),
		Content:   content,
		Timestamp: time.Now(),
		Extra: map[string]interface{}{
			"count": len(swept),
			"color": "orange",
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Error("过期汇总通知发送失败", zap.Error(err))
		return
	}
	result.Notified = true
}

// buildCredentialList 拼凭据清单(产品/登录名/客户), 产品名查不到时退化为ID
func (s *SweepService) buildCredentialList(creds []*model.Credential) string {
	productNames := map[int64]string{}
	var lines []string
	for _, cred := range creds {
		name, ok := productNames[cred.ProductID]
		if !ok {
			name = fmt.Sprintf("#%d", cred.ProductID)
			if product, err := s.productRepo.GetByID(cred.ProductID); err == nil {
				name = product.Name
			}
			productNames[cred.ProductID] = name
		}

		line := fmt.Sprintf("- **%s** / %s", name, cred.Login)
		if cred.ContactEmail() != "" {
			line += fmt.Sprintf(" (%s)", cred.ContactEmail())
		}
		if cred.ExpiresAt != nil {
			line += fmt.Sprintf(" 到期: %s", cred.ExpiresAt.Format("2006-01-02 15:04"))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
