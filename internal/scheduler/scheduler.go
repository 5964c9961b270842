package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"cred-stock/internal/dto"
	"cred-stock/internal/pkg/config"
	"cred-stock/internal/service"
)

// Scheduler 调度器
// 到期扫描和到期提醒都在这里注册, 也提供手动触发入口(管理接口/测试用)
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	sweepSvc      *service.SweepService
	warnDays      int
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(sweepSvc *service.SweepService, logger *zap.Logger) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		sweepSvc:      sweepSvc,
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(cfg *config.Config) error {
	log := s.logger.Sugar()

	log.Info("启动定时任务调度器...")

	// cron 表达式格式: 秒 分 时 日 月 周
	expireCron := cfg.Sweep.ExpireCron
	if expireCron == "" {
		expireCron = "0 0 2 * * *" // 默认: 每天凌晨2点
		log.Warn("未配置sweep.expire_cron，使用默认值", zap.String("cron", expireCron))
	}

	entryID, err := s.cron.AddFunc(expireCron, func() {
		log.Info("执行定时任务: 到期扫描")
		if _, err := s.sweepSvc.SweepExpired(context.Background()); err != nil {
			log.Errorf("到期扫描任务执行失败: %v", err)
		}
	})
	if err != nil {
		log.Errorf("注册到期扫描任务失败: %v cron=%v", err, expireCron)
		return err
	}
	s.cronSchedules["expire_sweep"] = entryID
	log.Infof("到期扫描任务已注册: %s entry_id=%d", expireCron, entryID)

	warnCron := cfg.Sweep.WarnCron
	if warnCron == "" {
		warnCron = "0 0 9 * * *" // 默认: 每天上午9点
		log.Warn("未配置sweep.warn_cron，使用默认值", zap.String("cron", warnCron))
	}
	s.warnDays = cfg.Sweep.WarnDaysBefore

	entryID, err = s.cron.AddFunc(warnCron, func() {
		log.Info("执行定时任务: 到期提醒")
		if _, err := s.sweepSvc.WarnExpiringSoon(context.Background(), s.warnDays); err != nil {
			log.Errorf("到期提醒任务执行失败: %v", err)
		}
	})
	if err != nil {
		log.Errorf("注册到期提醒任务失败: %v cron=%v", err, warnCron)
		return err
	}
	s.cronSchedules["expire_warn"] = entryID
	log.Infof("到期提醒任务已注册: %s entry_id=%d", warnCron, entryID)

	// 启动 cron
	s.cron.Start()
	log.Info("定时任务调度器启动成功")

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("定时任务调度器已停止")
}

// TriggerSweep 手动触发到期扫描（用于测试或手动触发）
func (s *Scheduler) TriggerSweep(ctx context.Context) (*dto.SweepResult, error) {
	s.logger.Info("手动触发到期扫描")
	return s.sweepSvc.SweepExpired(ctx)
}

// TriggerWarn 手动触发到期提醒
func (s *Scheduler) TriggerWarn(ctx context.Context) (*dto.SweepResult, error) {
	s.logger.Info("手动触发到期提醒")
	return s.sweepSvc.WarnExpiringSoon(ctx, s.warnDays)
}
