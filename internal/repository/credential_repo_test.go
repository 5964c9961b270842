package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cred-stock/internal/model"
	"cred-stock/pkg/constants"
	pkgErrors "cred-stock/pkg/responses"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.Product{}, &model.Credential{}, &model.AuditLog{}))
	return db
}

func createTestProduct(t *testing.T, db *gorm.DB, name string) *model.Product {
	t.Helper()
	p := &model.Product{Name: name, IsDigitalService: true, AutoAssign: true, Active: true}
	require.NoError(t, db.Create(p).Error)
	return p
}

func createTestCredential(t *testing.T, repo *CredentialRepository, productID int64, login string) *model.Credential {
	t.Helper()
	c := &model.Credential{
		ProductID:       productID,
		Login:           login,
		SecretEncrypted: "ZW5jcnlwdGVk",
		Active:          true,
	}
	require.NoError(t, repo.Create(c))
	return c
}

func TestCredentialRepository_Create(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	t.Run("正常创建", func(t *testing.T) {
		c := createTestCredential(t, repo, product.ID, "user1@test.com")
		assert.Equal(t, constants.CredentialStateAvailable, c.State)
		assert.Equal(t, constants.DeliveryStatusNone, c.DeliveryStatus)
	})

	t.Run("登录名去空格", func(t *testing.T) {
		c := &model.Credential{ProductID: product.ID, Login: "  padded@test.com  ", SecretEncrypted: "x", Active: true}
		require.NoError(t, repo.Create(c))
		assert.Equal(t, "padded@test.com", c.Login)
	})

	t.Run("空登录名拒绝", func(t *testing.T) {
		err := repo.Create(&model.Credential{ProductID: product.ID, Login: "   ", SecretEncrypted: "x"})
		assert.ErrorIs(t, err, pkgErrors.ErrEmptyLogin)
	})

	t.Run("空密文拒绝", func(t *testing.T) {
		err := repo.Create(&model.Credential{ProductID: product.ID, Login: "nosecret@test.com"})
		assert.ErrorIs(t, err, pkgErrors.ErrEmptySecret)
	})

	t.Run("同产品同登录名拒绝", func(t *testing.T) {
		err := repo.Create(&model.Credential{ProductID: product.ID, Login: "user1@test.com", SecretEncrypted: "x"})
		assert.ErrorIs(t, err, pkgErrors.ErrLoginExists)
	})

	t.Run("不同产品可以同登录名", func(t *testing.T) {
		other := createTestProduct(t, db, "Netflix")
		err := repo.Create(&model.Credential{ProductID: other.ID, Login: "user1@test.com", SecretEncrypted: "x", Active: true})
		assert.NoError(t, err)
	})
}

func TestCredentialRepository_GetByOrderLine(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	c := createTestCredential(t, repo, product.ID, "bound@test.com")
	orderLine := "SO001-1"
	c.OrderLineID = &orderLine
	c.State = constants.CredentialStateAssigned
	require.NoError(t, db.Save(c).Error)

	t.Run("已绑定返回凭据", func(t *testing.T) {
		got, err := repo.GetByOrderLine("SO001-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.ID, got.ID)
	})

	t.Run("未绑定返回nil而非错误", func(t *testing.T) {
		got, err := repo.GetByOrderLine("SO999-1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestCredentialRepository_FindOldestAvailable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	t.Run("池空返回nil", func(t *testing.T) {
		got, err := repo.FindOldestAvailable(product.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	first := createTestCredential(t, repo, product.ID, "first@test.com")
	createTestCredential(t, repo, product.ID, "second@test.com")

	t.Run("先进先出", func(t *testing.T) {
		got, err := repo.FindOldestAvailable(product.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("停用的不参与", func(t *testing.T) {
		require.NoError(t, repo.Deactivate(first.ID))
		got, err := repo.FindOldestAvailable(product.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "second@test.com", got.Login)
	})
}

func TestCredentialRepository_CountAvailable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	for i := 0; i < 3; i++ {
		createTestCredential(t, repo, product.ID, fmt.Sprintf("user%d@test.com", i))
	}

	count, err := repo.CountAvailable(product.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	// 分配一条后减少
	var c model.Credential
	require.NoError(t, db.First(&c).Error)
	c.State = constants.CredentialStateAssigned
	require.NoError(t, db.Save(&c).Error)

	count, err = repo.CountAvailable(product.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestCredentialRepository_FindExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)
	orderLine1, orderLine2 := "SO001-1", "SO001-2"

	expired := createTestCredential(t, repo, product.ID, "expired@test.com")
	expired.State = constants.CredentialStateAssigned
	expired.OrderLineID = &orderLine1
	expired.ExpiresAt = &yesterday
	require.NoError(t, db.Save(expired).Error)

	alive := createTestCredential(t, repo, product.ID, "alive@test.com")
	alive.State = constants.CredentialStateAssigned
	alive.OrderLineID = &orderLine2
	alive.ExpiresAt = &tomorrow
	require.NoError(t, db.Save(alive).Error)

	// 无到期时间的assigned不命中
	createTestCredential(t, repo, product.ID, "noexpiry@test.com")

	list, err := repo.FindExpired(now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "expired@test.com", list[0].Login)

	soon, err := repo.FindExpiringSoon(now, now.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, "alive@test.com", soon[0].Login)
}

func TestCredentialRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	product := createTestProduct(t, db, "Spotify Premium")

	createTestCredential(t, repo, product.ID, "a@test.com")
	createTestCredential(t, repo, product.ID, "b@test.com")
	assigned := createTestCredential(t, repo, product.ID, "c@test.com")
	orderLine := "SO001-1"
	assigned.State = constants.CredentialStateAssigned
	assigned.OrderLineID = &orderLine
	require.NoError(t, db.Save(assigned).Error)

	stats, err := repo.Stats(product.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Available)
	assert.EqualValues(t, 1, stats.Assigned)
	assert.EqualValues(t, 0, stats.Expired)
}
