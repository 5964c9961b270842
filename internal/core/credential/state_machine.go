package credential

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cred-stock/internal/model"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

// 状态流转来源: 内部(分配器/过期扫描)/外部(运营操作)
const (
	SourceInside  int8 = 1 << 0
	SourceOutside int8 = 1 << 1
)

// ErrStateConflict 乐观锁更新失败(并发修改), 调用方可重试
var ErrStateConflict = errors.New("state conflict: credential modified concurrently")

// StateMachine 凭据生命周期状态机
// 所有写入 state/order_line_id 的路径都必须经过这里, 任何组件不得直接改这两个字段
type StateMachine struct {
	db     *gorm.DB
	logger *zap.Logger
	audits *repository.AuditLogRepository

	transitions map[constants.CredentialState]map[constants.CredentialState]StateTransition
}

func NewStateMachine(db *gorm.DB, logger *zap.Logger) *StateMachine {
	sm := &StateMachine{
		db:          db,
		logger:      logger,
		audits:      repository.NewAuditLogRepository(db),
		transitions: make(map[constants.CredentialState]map[constants.CredentialState]StateTransition),
	}

	sm.registerTransitions()
	return sm
}

// ChangeState 执行一次状态流转
// 事务内: 重读最新记录 → 查流转表 → 执行副作用 → 乐观锁更新(WHERE id AND state) → 写审计
func (sm *StateMachine) ChangeState(ctx context.Context, cred *model.Credential, to constants.CredentialState, source int8, opts ...TransitionOption) error {
	log := sm.logger.Sugar().With(zap.Int64("credential_id", cred.ID))

	option := &transitionOptions{operator: "system"}
	for _, opt := range opts {
		opt(option)
	}

	var from constants.CredentialState

	err := sm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 重新加载最新状态
		if err := tx.First(cred, cred.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgErrors.ErrRecordNotFound
			}
			return err
		}
		from = cred.State

		// 2. 检查流转表是否允许
		h, ok := sm.canTransition(from, to, source)
		if !ok {
			return pkgErrors.Newf(pkgErrors.CodeInvalidTransition,
				"当前状态 %s 不允许转换到 %s",
				constants.CredentialStateToString(from), constants.CredentialStateToString(to))
		}

		// 3. 执行业务字段更新
		if option.sideEffect != nil {
			option.sideEffect(cred)
		}

		// 4. 处理流转守卫和字段不变式, 失败自动回滚
		if h != nil {
			if err := h.Handle(cred, from, to, option); err != nil {
				return err
			}
		}

		// 5. 乐观锁更新
		// 只能用 Updates: Save 在 WHERE 不命中(正是并发冲突的场景)时会退化为 upsert,
		// RowsAffected=1 且无错误, 把竞争者刚写入的分配覆盖掉
		cred.State = to
		result := tx.Model(&model.Credential{}).
			Where("id = ? AND state = ?", cred.ID, from).
			Select("*").Updates(cred)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStateConflict
		}

		// 6. 审计记录与更新同一事务落库
		entry := &model.AuditLog{
			CredentialID: cred.ID,
			FromState:    from,
			ToState:      to,
			Operator:     option.operator,
			Note:         option.note,
			Details:      transitionDetails(cred),
		}
		if err := sm.audits.CreateTx(tx, entry); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return err
	}

	log.Infof("[Credential SM: %d] 状态变更成功: %v -> %v operator=%s", cred.ID, from, to, option.operator)
	return nil
}

// canTransition 检查是否可以进行状态转换
func (sm *StateMachine) canTransition(from, to constants.CredentialState, source int8) (TransitionHandler, bool) {
	if transitions, ok := sm.transitions[from]; ok {
		if transition, ok := transitions[to]; ok && transition.AllowSource&source != 0 {
			return transition.Handler, true
		}
	}
	return nil, false
}

// transitionDetails 审计记录附带的上下文快照
func transitionDetails(cred *model.Credential) datatypes.JSON {
	detail := map[string]interface{}{
		"product_id": cred.ProductID,
		"login":      cred.Login,
	}
	if cred.OrderLineID != nil {
		detail["order_line_id"] = *cred.OrderLineID
	}
	if cred.ExpiresAt != nil {
		detail["expires_at"] = cred.ExpiresAt
	}

	raw, err := json.Marshal(detail)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
