package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq int64

// テストごとに独立したインメモリDB。接続は1本に絞ってトランザクションを直列化する
func NewSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, atomic.AddInt64(&dbSeq, 1))

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// =====================
// fixtures
// =====================

func CreateUser(t *testing.T, gdb *gorm.DB, email string, role model.Role) model.User {
	t.Helper()
	now := time.Now().UTC()
	u := model.User{
		Email:         email,
		PasswordHash:  "x",
		FirstName:     "Test",
		LastName:      "User",
		Phone:         "9800000000",
		Role:          role,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, gdb.Create(&u).Error)
	return u
}

func CreateCategory(t *testing.T, gdb *gorm.DB, name string) model.Category {
	t.Helper()
	c := model.Category{Name: name, IsActive: true}
	require.NoError(t, gdb.Create(&c).Error)
	return c
}

func CreateProduct(t *testing.T, gdb *gorm.DB, categoryID int64, name string, price string, stock int64) model.Product {
	t.Helper()
	p := model.Product{
		CategoryID: categoryID,
		Name:       name,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsActive:   true,
	}
	require.NoError(t, gdb.Create(&p).Error)
	return p
}

func AddToCart(t *testing.T, gdb *gorm.DB, userID, productID, qty int64) {
	t.Helper()
	require.NoError(t, gdb.Create(&model.CartItem{UserID: userID, ProductID: productID, Quantity: qty}).Error)
}

func Stock(t *testing.T, gdb *gorm.DB, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, gdb.First(&p, productID).Error)
	return p.Stock
}

func CartCount(t *testing.T, gdb *gorm.DB, userID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&model.CartItem{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

// 固定時刻の時計
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
