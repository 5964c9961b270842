package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cred-stock/internal/adapter/notification"
	"cred-stock/internal/model"
	"cred-stock/internal/pkg/config"
	"cred-stock/internal/pkg/crypto"
	"cred-stock/internal/repository"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

const testAESKey = "0123456789abcdef0123456789abcdef"

type mailServer struct {
	*httptest.Server
	status int
	bodies []string
}

func newMailServer(status int) *mailServer {
	ms := &mailServer{status: status}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		ms.bodies = append(ms.bodies, string(raw))
		w.WriteHeader(ms.status)
	}))
	return ms
}

func newDeliveryFixture(t *testing.T, mailStatus int) (*gorm.DB, *DeliveryService, *mailServer, *model.Product) {
	t.Helper()

	db := setupServiceDB(t)
	credRepo := repository.NewCredentialRepository(db)
	productRepo := repository.NewProductRepository(db)

	srv := newMailServer(mailStatus)
	t.Cleanup(srv.Close)

	mailer := notification.NewSendGridMailer(&config.MailConfig{
		APIKey:    "test-key",
		APIURL:    srv.URL,
		FromEmail: "noreply@test.com",
		FromName:  "Cred Stock",
	}, zap.NewNop())

	svc, err := NewDeliveryService(credRepo, productRepo, mailer, testAESKey, "", zap.NewNop())
	require.NoError(t, err)

	product := &model.Product{Name: "Spotify Premium", IsDigitalService: true, AutoAssign: true, Active: true}
	require.NoError(t, productRepo.Create(product))
	return db, svc, srv, product
}

func seedAssignedWithSecret(t *testing.T, db *gorm.DB, productID int64, email string) *model.Credential {
	t.Helper()

	encrypted, err := crypto.EncryptSecret(testAESKey, "s3cret-pass")
	require.NoError(t, err)

	orderLine := "SO100-1"
	c := &model.Credential{
		ProductID:       productID,
		Login:           "account@provider.com",
		SecretEncrypted: encrypted,
		State:           constants.CredentialStateAssigned,
		OrderLineID:     &orderLine,
		DeliveryStatus:  constants.DeliveryStatusNone,
		Active:          true,
	}
	if email != "" {
		c.CustomerEmail = &email
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func TestDeliveryService_DeliverCredential(t *testing.T) {
	t.Run("发送成功记录sent", func(t *testing.T) {
		db, svc, srv, product := newDeliveryFixture(t, http.StatusAccepted)
		cred := seedAssignedWithSecret(t, db, product.ID, "buyer@test.com")

		require.NoError(t, svc.DeliverCredential(context.Background(), cred))

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.DeliveryStatusSent, got.DeliveryStatus)
		assert.Nil(t, got.DeliveryError)
		assert.NotNil(t, got.DeliveredAt)

		// 邮件内容包含登录名/解密后的密码/产品名
		require.Len(t, srv.bodies, 1)
		assert.Contains(t, srv.bodies[0], "buyer@test.com")
		assert.Contains(t, srv.bodies[0], "account@provider.com")
		assert.Contains(t, srv.bodies[0], "s3cret-pass")
		assert.Contains(t, srv.bodies[0], "Spotify Premium")
	})

	t.Run("发送失败记录failed但不回滚分配", func(t *testing.T) {
		db, svc, _, product := newDeliveryFixture(t, http.StatusInternalServerError)
		cred := seedAssignedWithSecret(t, db, product.ID, "buyer@test.com")

		err := svc.DeliverCredential(context.Background(), cred)
		assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeDeliveryError))

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		// 分配状态不变, 失败只记录在交付字段上
		assert.Equal(t, constants.CredentialStateAssigned, got.State)
		assert.Equal(t, constants.DeliveryStatusFailed, got.DeliveryStatus)
		require.NotNil(t, got.DeliveryError)
		assert.NotEmpty(t, *got.DeliveryError)
		assert.Nil(t, got.DeliveredAt)
	})

	t.Run("无联系邮箱直接记录失败", func(t *testing.T) {
		db, svc, srv, product := newDeliveryFixture(t, http.StatusAccepted)
		cred := seedAssignedWithSecret(t, db, product.ID, "")

		err := svc.DeliverCredential(context.Background(), cred)
		assert.ErrorIs(t, err, pkgErrors.ErrNoContactEmail)
		// 没有发出任何请求
		assert.Empty(t, srv.bodies)

		var got model.Credential
		require.NoError(t, db.First(&got, cred.ID).Error)
		assert.Equal(t, constants.DeliveryStatusFailed, got.DeliveryStatus)
	})
}

func TestDeliveryService_Resend(t *testing.T) {
	t.Run("重发成功", func(t *testing.T) {
		db, svc, srv, product := newDeliveryFixture(t, http.StatusAccepted)
		cred := seedAssignedWithSecret(t, db, product.ID, "buyer@test.com")

		require.NoError(t, svc.Resend(context.Background(), cred.ID))
		assert.Len(t, srv.bodies, 1)
	})

	t.Run("非assigned不允许重发", func(t *testing.T) {
		db, svc, srv, product := newDeliveryFixture(t, http.StatusAccepted)
		cred := seedAssignedWithSecret(t, db, product.ID, "buyer@test.com")
		require.NoError(t, db.Model(cred).Update("state", constants.CredentialStateExpired).Error)

		err := svc.Resend(context.Background(), cred.ID)
		assert.True(t, pkgErrors.IsCode(err, pkgErrors.CodeInvalidTransition))
		assert.Empty(t, srv.bodies)
	})

	t.Run("无联系邮箱快速失败", func(t *testing.T) {
		db, svc, srv, product := newDeliveryFixture(t, http.StatusAccepted)
		cred := seedAssignedWithSecret(t, db, product.ID, "")

		err := svc.Resend(context.Background(), cred.ID)
		assert.ErrorIs(t, err, pkgErrors.ErrNoContactEmail)
		assert.Empty(t, srv.bodies)
	})
}
