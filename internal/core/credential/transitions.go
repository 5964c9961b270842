package credential

import (
	"cred-stock/internal/model"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

type TransitionHandler interface {
	// Handle 检查流转守卫, 维护状态相关字段的不变式
	Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error
}

type StateTransition struct {
	From    constants.CredentialState
	To      constants.CredentialState
	Handler TransitionHandler

	AllowSource int8 // 使用位运算
}

type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	operator   string
	note       string
	sideEffect func(c *model.Credential)
}

// WithModelEffects 在流转事务内更新业务字段(分配时写入订单行/客户信息等)
func WithModelEffects(sideEffects func(c *model.Credential)) TransitionOption {
	return func(o *transitionOptions) { o.sideEffect = sideEffects }
}
func WithOperator(operator string) TransitionOption {
	return func(o *transitionOptions) {
		if operator != "" {
			o.operator = operator
		}
	}
}
func WithNote(note string) TransitionOption {
	return func(o *transitionOptions) { o.note = note }
}

func (sm *StateMachine) registerTransitions() {
	var transitions = []StateTransition{
		// 可用 -> 已分配 (仅分配器走这条路)
		{
			From:        constants.CredentialStateAvailable,
			To:          constants.CredentialStateAssigned,
			Handler:     AssignTransition{},
			AllowSource: SourceInside,
		},
		// 已分配 -> 等待重置 (运营操作)
		{
			From:        constants.CredentialStateAssigned,
			To:          constants.CredentialStatePendingReset,
			Handler:     MarkPendingResetTransition{},
			AllowSource: SourceOutside,
		},
		// 等待重置 -> 可用 (账号重置完成, 回池)
		{
			From:        constants.CredentialStatePendingReset,
			To:          constants.CredentialStateAvailable,
			Handler:     ResetTransition{},
			AllowSource: SourceOutside,
		},
		// 已分配 -> 已过期 (过期扫描自动触发, 或运营强制)
		{
			From:        constants.CredentialStateAssigned,
			To:          constants.CredentialStateExpired,
			Handler:     ExpireTransition{},
			AllowSource: SourceInside | SourceOutside,
		},
		// 已分配 -> 可用 (强制释放, 仍有订单行绑定时拒绝)
		{
			From:        constants.CredentialStateAssigned,
			To:          constants.CredentialStateAvailable,
			Handler:     ForceAvailableTransition{},
			AllowSource: SourceOutside,
		},
	}

	for _, t := range transitions {
		if sm.transitions[t.From] == nil {
			sm.transitions[t.From] = make(map[constants.CredentialState]StateTransition)
		}
		sm.transitions[t.From][t.To] = t
	}
}

// ================== 状态转换处理函数 ==================

// AssignTransition 处理分配
// 业务字段(订单行/客户/时间)由分配器通过 WithModelEffects 写入, 这里只守卫不变式
type AssignTransition struct{}

func (h AssignTransition) Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error {
	if !cred.Active {
		return pkgErrors.New(pkgErrors.CodeInvalidTransition, "已停用的凭据不允许分配")
	}
	// assigned 状态必须绑定订单行
	if !cred.IsBound() {
		return pkgErrors.New(pkgErrors.CodeInvalidTransition, "分配凭据必须指定订单行")
	}
	if cred.AssignedAt == nil {
		return pkgErrors.New(pkgErrors.CodeInvalidTransition, "分配凭据必须记录分配时间")
	}
	return nil
}

// MarkPendingResetTransition 标记等待重置, 不改其他字段
type MarkPendingResetTransition struct{}

func (h MarkPendingResetTransition) Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error {
	return nil
}

// ResetTransition 账号重置完成, 清空绑定信息回池
type ResetTransition struct{}

func (h ResetTransition) Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error {
	cred.OrderLineID = nil
	cred.CustomerEmail = nil
	cred.CustomerName = nil
	cred.AssignedAt = nil
	cred.ExpiresAt = nil
	cred.DeliveryStatus = constants.DeliveryStatusNone
	cred.DeliveryError = nil
	cred.DeliveredAt = nil
	return nil
}

// ExpireTransition 标记过期, 保留订单行绑定用于审计
type ExpireTransition struct{}

func (h ExpireTransition) Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error {
	return nil
}

// ForceAvailableTransition 强制释放回池
// 仍有订单行绑定时拒绝, 正常流程应先走 pending_reset
type ForceAvailableTransition struct{}

func (h ForceAvailableTransition) Handle(cred *model.Credential, from, to constants.CredentialState, options *transitionOptions) error {
	if cred.IsBound() {
		return pkgErrors.ErrBoundCredential
	}
	cred.AssignedAt = nil
	cred.ExpiresAt = nil
	return nil
}
