package credential

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cred-stock/internal/model"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

func setupSM(t *testing.T) (*gorm.DB, *StateMachine) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Credential{}, &model.AuditLog{}))
	return db, NewStateMachine(db, zap.NewNop())
}

func newAvailableCredential(t *testing.T, db *gorm.DB, login string) *model.Credential {
	t.Helper()
	c := &model.Credential{
		ProductID:       1,
		Login:           login,
		SecretEncrypted: "ZW5jcnlwdGVk",
		State:           constants.CredentialStateAvailable,
		DeliveryStatus:  constants.DeliveryStatusNone,
		Active:          true,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func assignEffects(orderLine string) TransitionOption {
	return WithModelEffects(func(c *model.Credential) {
		now := time.Now()
		c.OrderLineID = &orderLine
		c.AssignedAt = &now
	})
}

func TestStateMachine_Assign(t *testing.T) {
	db, sm := setupSM(t)
	ctx := context.Background()

	t.Run("分配成功并写审计", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "assign@test.com")
		err := sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
			WithOperator("order-workflow"), assignEffects("SO001-1"))
		require.NoError(t, err)

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.CredentialStateAssigned, got.State)
		require.NotNil(t, got.OrderLineID)
		assert.Equal(t, "SO001-1", *got.OrderLineID)
		assert.NotNil(t, got.AssignedAt)

		var logs []model.AuditLog
		require.NoError(t, db.Where("credential_id = ?", cred.ID).Find(&logs).Error)
		require.Len(t, logs, 1)
		assert.Equal(t, constants.CredentialStateAvailable, logs[0].FromState)
		assert.Equal(t, constants.CredentialStateAssigned, logs[0].ToState)
		assert.Equal(t, "order-workflow", logs[0].Operator)
	})

	t.Run("运营入口不允许直接分配", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "outside@test.com")
		err := sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceOutside,
			assignEffects("SO001-2"))
		assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition))
	})

	t.Run("缺少订单行绑定时整个事务回滚", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "nobind@test.com")
		err := sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside)
		assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition))

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.CredentialStateAvailable, got.State)

		var count int64
		require.NoError(t, db.Model(&model.AuditLog{}).Where("credential_id = ?", cred.ID).Count(&count).Error)
		assert.EqualValues(t, 0, count)
	})

	t.Run("停用凭据不允许分配", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "inactive@test.com")
		cred.Active = false
		require.NoError(t, db.Save(cred).Error)

		err := sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
			assignEffects("SO001-3"))
		assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition))
	})
}

func TestStateMachine_IllegalTransition(t *testing.T) {
	db, sm := setupSM(t)
	cred := newAvailableCredential(t, db, "illegal@test.com")

	// available -> expired 不在流转表
	err := sm.ChangeState(context.Background(), cred, constants.CredentialStateExpired, SourceInside|SourceOutside)
	require.Error(t, err)
	assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition))
	// 错误信息要同时说明当前状态和目标状态
	assert.Contains(t, err.Error(), "Available")
	assert.Contains(t, err.Error(), "Expired")
}

func TestStateMachine_ConcurrentConflict(t *testing.T) {
	db, sm := setupSM(t)
	cred := newAvailableCredential(t, db, "race@test.com")

	// 重读之后、守卫更新之前, 另一个认领者抢先占用了这条凭据:
	// 守卫更新必须 0 行命中并整体回滚, 不能退化为 upsert 覆盖竞争者的写入
	var stolen bool
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("rival_claim", func(tx *gorm.DB) {
		if stolen || tx.Statement.Schema == nil || tx.Statement.Schema.Table != model.CredentialTableName {
			return
		}
		stolen = true
		require.NoError(t, tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE "+model.CredentialTableName+" SET state = ? WHERE id = ?",
				constants.CredentialStateAssigned, cred.ID).Error)
	}))

	err := sm.ChangeState(context.Background(), cred, constants.CredentialStateAssigned, SourceInside,
		assignEffects("SO005-1"))
	require.True(t, stolen)
	assert.ErrorIs(t, err, ErrStateConflict)

	// 事务整体回滚: 竞争写入和本次副作用都不落库, 也没有审计记录
	var got model.Credential
	require.NoError(t, db.First(&got, cred.ID).Error)
	assert.Equal(t, constants.CredentialStateAvailable, got.State)
	assert.Nil(t, got.OrderLineID)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("credential_id = ?", cred.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestStateMachine_FullResetCycle(t *testing.T) {
	db, sm := setupSM(t)
	ctx := context.Background()
	cred := newAvailableCredential(t, db, "cycle@test.com")

	// available -> assigned
	require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
		assignEffects("SO002-1")))

	// assigned -> pending_reset
	require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStatePendingReset, SourceOutside,
		WithOperator("alice"), WithNote("客户退订")))

	// pending_reset 阶段绑定信息保留
	var mid model.Credential
	require.NoError(t, db.First(&mid, cred.ID).Error)
	assert.NotNil(t, mid.OrderLineID)

	// pending_reset -> available 清空绑定
	require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateAvailable, SourceOutside,
		WithOperator("alice"), WithNote("账号已重置")))

	var got model.Credential
	require.NoError(t, db.First(&got, cred.ID).Error)
	assert.Equal(t, constants.CredentialStateAvailable, got.State)
	assert.Nil(t, got.OrderLineID)
	assert.Nil(t, got.CustomerEmail)
	assert.Nil(t, got.AssignedAt)
	assert.Nil(t, got.ExpiresAt)
	assert.Equal(t, constants.DeliveryStatusNone, got.DeliveryStatus)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("credential_id = ?", cred.ID).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestStateMachine_Expire(t *testing.T) {
	db, sm := setupSM(t)
	ctx := context.Background()
	cred := newAvailableCredential(t, db, "expire@test.com")

	require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
		assignEffects("SO003-1")))
	require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateExpired, SourceInside,
		WithOperator("system"), WithNote("到期自动流转")))

	// 过期保留订单行绑定用于审计
	var got model.Credential
	require.NoError(t, db.First(&got, cred.ID).Error)
	assert.Equal(t, constants.CredentialStateExpired, got.State)
	require.NotNil(t, got.OrderLineID)
	assert.Equal(t, "SO003-1", *got.OrderLineID)
}

func TestStateMachine_ForceAvailable(t *testing.T) {
	db, sm := setupSM(t)
	ctx := context.Background()

	t.Run("仍绑定订单行时拒绝", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "bound@test.com")
		require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
			assignEffects("SO004-1")))

		err := sm.ChangeState(ctx, cred, constants.CredentialStateAvailable, SourceOutside)
		assert.ErrorIs(t, err, pkgErrors.ErrBoundCredential)

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.CredentialStateAssigned, got.State)
	})

	t.Run("绑定解除后可以释放", func(t *testing.T) {
		cred := newAvailableCredential(t, db, "unbound@test.com")
		require.NoError(t, sm.ChangeState(ctx, cred, constants.CredentialStateAssigned, SourceInside,
			assignEffects("SO004-2")))

		// 订单行绑定在外部流程中解除(退款撤单)
		require.NoError(t, db.Model(cred).Update("order_line_id", nil).Error)

		err := sm.ChangeState(ctx, cred, constants.CredentialStateAvailable, SourceOutside,
			WithOperator("bob"))
		require.NoError(t, err)

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.CredentialStateAvailable, got.State)
		assert.Nil(t, got.AssignedAt)
		assert.Nil(t, got.ExpiresAt)
	})
}
