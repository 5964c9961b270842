package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cred-stock/internal/adapter/notification"
	coreCredential "cred-stock/internal/core/credential"
	"cred-stock/internal/model"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
)

func newSweepFixture(t *testing.T) (*gorm.DB, *SweepService, *captureNotifier, *model.Product) {
	t.Helper()

	db := setupServiceDB(t)
	credRepo := repository.NewCredentialRepository(db)
	productRepo := repository.NewProductRepository(db)
	sm := coreCredential.NewStateMachine(db, zap.NewNop())
	notifier := &captureNotifier{}

	svc := NewSweepService(credRepo, productRepo, sm, notifier, zap.NewNop())

	product := &model.Product{Name: "Netflix Standard", IsDigitalService: true, AutoAssign: true, Active: true}
	require.NoError(t, productRepo.Create(product))
	return db, svc, notifier, product
}

func seedAssigned(t *testing.T, db *gorm.DB, productID int64, login, orderLine, email string, expiresAt time.Time) *model.Credential {
	t.Helper()
	c := &model.Credential{
		ProductID:       productID,
		Login:           login,
		SecretEncrypted: "ZW5jcnlwdGVk",
		State:           constants.CredentialStateAssigned,
		OrderLineID:     &orderLine,
		CustomerEmail:   &email,
		ExpiresAt:       &expiresAt,
		DeliveryStatus:  constants.DeliveryStatusSent,
		Active:          true,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func TestSweepService_SweepExpired(t *testing.T) {
	db, svc, notifier, product := newSweepFixture(t)
	ctx := context.Background()

	t.Run("无到期凭据时不发通知", func(t *testing.T) {
		result, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Scanned)
		assert.False(t, result.Notified)
		assert.Empty(t, notifier.msgs)
	})

	yesterday := time.Now().Add(-24 * time.Hour)
	tomorrow := time.Now().Add(24 * time.Hour)
	expired := seedAssigned(t, db, product.ID, "dead@test.com", "SO010-1", "customer@test.com", yesterday)
	alive := seedAssigned(t, db, product.ID, "alive@test.com", "SO010-2", "other@test.com", tomorrow)

	t.Run("到期凭据流转为expired并汇总通知", func(t *testing.T) {
		result, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Scanned)
		assert.Equal(t, 1, result.Swept)
		assert.Equal(t, 0, result.Failed)
		assert.True(t, result.Notified)

		var got model.Credential
		require.NoError(t, db.First(&got, expired.ID).Error)
		assert.Equal(t, constants.CredentialStateExpired, got.State)
		// 审计用绑定保留
		require.NotNil(t, got.OrderLineID)
		assert.Equal(t, "SO010-1", *got.OrderLineID)

		// 未到期的不受影响
		got = model.Credential{}
		require.NoError(t, db.First(&got, alive.ID).Error)
		assert.Equal(t, constants.CredentialStateAssigned, got.State)

		// 整轮一条汇总通知, 带产品/登录名/客户
		require.Len(t, notifier.msgs, 1)
		msg := notifier.msgs[0]
		assert.Equal(t, notification.NotifyCredentialsExpired, msg.Type)
		assert.Contains(t, msg.Content, "Netflix Standard")
		assert.Contains(t, msg.Content, "dead@test.com")
		assert.Contains(t, msg.Content, "customer@test.com")
	})

	t.Run("重复扫描幂等", func(t *testing.T) {
		result, err := svc.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Scanned)
		assert.Equal(t, 0, result.Swept)
		// 不再发新通知
		assert.Len(t, notifier.msgs, 1)
	})
}

func TestSweepService_SweepExpired_BatchedNotification(t *testing.T) {
	db, svc, notifier, product := newSweepFixture(t)

	yesterday := time.Now().Add(-24 * time.Hour)
	seedAssigned(t, db, product.ID, "one@test.com", "SO011-1", "a@test.com", yesterday)
	seedAssigned(t, db, product.ID, "two@test.com", "SO011-2", "b@test.com", yesterday)
	seedAssigned(t, db, product.ID, "three@test.com", "SO011-3", "c@test.com", yesterday)

	result, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Swept)

	// 多条到期也只发一条汇总
	require.Len(t, notifier.msgs, 1)
	assert.Contains(t, notifier.msgs[0].Content, "one@test.com")
	assert.Contains(t, notifier.msgs[0].Content, "two@test.com")
	assert.Contains(t, notifier.msgs[0].Content, "three@test.com")
}

func TestSweepService_WarnExpiringSoon(t *testing.T) {
	db, svc, notifier, product := newSweepFixture(t)
	ctx := context.Background()

	in1day := time.Now().Add(24 * time.Hour)
	in2days := time.Now().Add(48 * time.Hour)
	in10days := time.Now().Add(240 * time.Hour)
	seedAssigned(t, db, product.ID, "soon@test.com", "SO012-1", "a@test.com", in1day)
	seedAssigned(t, db, product.ID, "soon2@test.com", "SO012-2", "b@test.com", in2days)
	seedAssigned(t, db, product.ID, "later@test.com", "SO012-3", "c@test.com", in10days)

	result, err := svc.WarnExpiringSoon(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.True(t, result.Notified)

	// 一条凭据一条提醒, 窗口外的不提醒
	require.Len(t, notifier.msgs, 2)
	for _, msg := range notifier.msgs {
		assert.Equal(t, notification.NotifyExpiringSoon, msg.Type)
		assert.NotContains(t, msg.Content, "later@test.com")
	}
	assert.Contains(t, notifier.msgs[0].Content, "soon@test.com")
	assert.Contains(t, notifier.msgs[1].Content, "soon2@test.com")

	// 提醒不改状态
	var got model.Credential
	require.NoError(t, db.Where("login = ?", "soon@test.com").First(&got).Error)
	assert.Equal(t, constants.CredentialStateAssigned, got.State)
}
