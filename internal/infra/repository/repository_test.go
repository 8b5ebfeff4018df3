package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func seedOrder(t *testing.T, r *infraRepo.OrderGormRepository, userID int64, number string, method model.PaymentMethod, orderedAt time.Time) int64 {
	t.Helper()
	id, err := r.Create(context.Background(), model.Order{
		OrderNumber:     number,
		UserID:          userID,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   method,
		TotalAmount:     decimal.RequireFromString("100.00"),
		ShippingName:    "Test",
		ShippingAddress: "Street 1",
		ShippingCity:    "Kathmandu",
		ShippingPhone:   "9800000000",
		OrderedAt:       orderedAt,
		UpdatedAt:       orderedAt,
	})
	require.NoError(t, err)
	return id
}

func TestInventory_DecreaseStockIfEnough(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	cat := testutil.CreateCategory(t, gdb, "General")
	p := testutil.CreateProduct(t, gdb, cat.ID, "Rice", "10.00", 3)
	inv := infraRepo.NewInventoryGormRepository(gdb)
	ctx := context.Background()

	ok, err := inv.DecreaseStockIfEnough(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), testutil.Stock(t, gdb, p.ID))

	//足りないときは何も変えない
	ok, err = inv.DecreaseStockIfEnough(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), testutil.Stock(t, gdb, p.ID))

	require.NoError(t, inv.IncreaseStock(ctx, p.ID, 4))
	assert.Equal(t, int64(5), testutil.Stock(t, gdb, p.ID))

	assert.ErrorIs(t, inv.IncreaseStock(ctx, 9999, 1), repo.ErrNotFound)
	assert.ErrorIs(t, inv.SetStock(ctx, 9999, 1), repo.ErrNotFound)
}

func TestOrder_TransitionRequiresExpectedState(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "o@example.com", model.RoleCustomer)
	orders := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	id := seedOrder(t, orders, u.ID, "ORD-1", model.PaymentMethodGateway, t0)

	paidAt := t0.Add(time.Minute)
	ref := "idx-1"
	pay := repo.OrderTransition{
		OrderID:          id,
		FromStatus:       model.OrderStatusPending,
		FromPayment:      model.PaymentStatusPending,
		ToStatus:         model.OrderStatusProcessing,
		ToPayment:        model.PaymentStatusCompleted,
		PaymentReference: &ref,
		PaidAt:           &paidAt,
		UpdatedAt:        paidAt,
	}
	require.NoError(t, orders.Transition(ctx, pay))

	//同じ遷移をもう一度は古い状態
	assert.ErrorIs(t, orders.Transition(ctx, pay), repo.ErrStaleState)

	got, err := orders.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, got.Status)
	assert.Equal(t, model.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, "idx-1", got.PaymentReference)
	require.NotNil(t, got.PaidAt)
	assert.Nil(t, got.ShippedAt)
}

func TestOrder_CreateDuplicateNumber(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "dup@example.com", model.RoleCustomer)
	orders := infraRepo.NewOrderGormRepository(gdb)

	seedOrder(t, orders, u.ID, "ORD-DUP", model.PaymentMethodCashOnDelivery, t0)
	_, err := orders.Create(context.Background(), model.Order{
		OrderNumber:   "ORD-DUP",
		UserID:        u.ID,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusPending,
		PaymentMethod: model.PaymentMethodCashOnDelivery,
		TotalAmount:   decimal.NewFromInt(1),
		OrderedAt:     t0,
		UpdatedAt:     t0,
	})
	assert.ErrorIs(t, err, repo.ErrDuplicate)
}

func TestOrder_ListUnpaidGatewayBefore(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "late@example.com", model.RoleCustomer)
	orders := infraRepo.NewOrderGormRepository(gdb)
	ctx := context.Background()

	old := seedOrder(t, orders, u.ID, "ORD-OLD", model.PaymentMethodGateway, t0.Add(-time.Hour))
	seedOrder(t, orders, u.ID, "ORD-NEW", model.PaymentMethodGateway, t0)
	seedOrder(t, orders, u.ID, "ORD-COD", model.PaymentMethodCashOnDelivery, t0.Add(-time.Hour))

	list, err := orders.ListUnpaidGatewayBefore(ctx, t0.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, old, list[0].ID)

	pending, total, err := orders.ListAdmin(ctx, repo.AdminOrderListFilter{Status: model.OrderStatusPending, UserID: &u.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, pending, 3)
}

func TestOTP_MarkUsedOnce(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	otps := infraRepo.NewOTPGormRepository(gdb)
	ctx := context.Background()

	first := &model.OTPVerification{Email: "Mixed@Example.com", Code: "123456", ExpiresAt: t0.Add(10 * time.Minute), CreatedAt: t0}
	require.NoError(t, otps.Create(ctx, first))
	second := &model.OTPVerification{Email: "mixed@example.com", Code: "123456", ExpiresAt: t0.Add(20 * time.Minute), CreatedAt: t0.Add(time.Minute)}
	require.NoError(t, otps.Create(ctx, second))

	//新しい方から
	got, err := otps.FindLatestUnused(ctx, "MIXED@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	require.NoError(t, otps.MarkUsed(ctx, got.ID))
	assert.ErrorIs(t, otps.MarkUsed(ctx, got.ID), repo.ErrStaleState)

	got, err = otps.FindLatestUnused(ctx, "mixed@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = otps.FindLatestUnused(ctx, "mixed@example.com", "654321")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRefreshToken_MarkUsedAndRevoke(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "rt@example.com", model.RoleCustomer)
	tokens := infraRepo.NewRefreshTokenRepository(gdb)
	ctx := context.Background()

	mk := func(id, hash string) {
		require.NoError(t, tokens.Create(ctx, &model.RefreshToken{
			ID:        id,
			UserID:    u.ID,
			TokenHash: hash,
			UserAgent: "test",
			ExpiresAt: t0.Add(24 * time.Hour),
			CreatedAt: t0,
		}))
	}
	mk("rt-1", "hash-1")
	mk("rt-2", "hash-2")

	require.NoError(t, tokens.MarkUsed(ctx, "rt-1", t0))
	assert.ErrorIs(t, tokens.MarkUsed(ctx, "rt-1", t0), repo.ErrStaleState)

	require.NoError(t, tokens.RevokeAllByUserID(ctx, u.ID, t0))
	assert.ErrorIs(t, tokens.MarkUsed(ctx, "rt-2", t0), repo.ErrStaleState)

	got, err := tokens.FindByTokenHash(ctx, "hash-2")
	require.NoError(t, err)
	assert.False(t, got.Usable(t0))

	_, err = tokens.FindByTokenHash(ctx, "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUser_DuplicateEmailAndTokenVersion(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	users := infraRepo.NewUserGormRepository(gdb)
	ctx := context.Background()

	u := testutil.CreateUser(t, gdb, "same@example.com", model.RoleCustomer)
	err := users.Create(ctx, &model.User{Email: "same@example.com", PasswordHash: "x", Role: model.RoleCustomer, CreatedAt: t0, UpdatedAt: t0})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	found, err := users.FindByEmail(ctx, "SAME@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	require.NoError(t, users.IncrementTokenVersion(ctx, u.ID))
	require.NoError(t, users.IncrementTokenVersion(ctx, u.ID))
	found, err = users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.TokenVersion)

	assert.ErrorIs(t, users.IncrementTokenVersion(ctx, 9999), repo.ErrNotFound)
}

func TestCartItem_UniquePerProduct(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "cart@example.com", model.RoleCustomer)
	cat := testutil.CreateCategory(t, gdb, "General")
	p := testutil.CreateProduct(t, gdb, cat.ID, "Tea", "5.00", 10)
	cart := infraRepo.NewCartItemGormRepository(gdb)
	ctx := context.Background()

	_, err := cart.Create(ctx, model.CartItem{UserID: u.ID, ProductID: p.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = cart.Create(ctx, model.CartItem{UserID: u.ID, ProductID: p.ID, Quantity: 1})
	assert.ErrorIs(t, err, repo.ErrDuplicate)

	n, err := cart.SumQuantity(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, cart.ClearByUserID(ctx, u.ID))
	assert.Equal(t, int64(0), testutil.CartCount(t, gdb, u.ID))
}

func TestAddress_SetDefaultIsExclusive(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	u := testutil.CreateUser(t, gdb, "addr@example.com", model.RoleCustomer)
	other := testutil.CreateUser(t, gdb, "other@example.com", model.RoleCustomer)
	addresses := infraRepo.NewAddressGormRepository(gdb)
	ctx := context.Background()

	a1, err := addresses.Create(ctx, model.Address{UserID: u.ID, Name: "Home", Line1: "A", City: "C", Phone: "1", IsDefault: true, CreatedAt: t0, UpdatedAt: t0})
	require.NoError(t, err)
	a2, err := addresses.Create(ctx, model.Address{UserID: u.ID, Name: "Work", Line1: "B", City: "C", Phone: "1", CreatedAt: t0, UpdatedAt: t0})
	require.NoError(t, err)

	require.NoError(t, addresses.SetDefault(ctx, u.ID, a2.ID))

	list, err := addresses.ListByUserID(ctx, u.ID)
	require.NoError(t, err)
	defaults := map[int64]bool{}
	for _, a := range list {
		defaults[a.ID] = a.IsDefault
	}
	assert.Equal(t, map[int64]bool{a1.ID: false, a2.ID: true}, defaults)

	//他人の住所はロールバックされて元のまま
	err = addresses.SetDefault(ctx, other.ID, a1.ID)
	assert.True(t, errors.Is(err, repo.ErrNotFound))
	got, err := addresses.FindByID(ctx, a2.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	cat := testutil.CreateCategory(t, gdb, "General")
	p := testutil.CreateProduct(t, gdb, cat.ID, "Salt", "1.00", 5)
	txm := infraRepo.NewTxManagerGorm(gdb)
	boom := errors.New("boom")

	err := txm.WithinTx(context.Background(), func(r repo.TxRepos) error {
		ok, err := r.Inventory().DecreaseStockIfEnough(context.Background(), p.ID, 5)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(5), testutil.Stock(t, gdb, p.ID))
}

func TestProduct_ListFilters(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	cat := testutil.CreateCategory(t, gdb, "Drinks")
	other := testutil.CreateCategory(t, gdb, "Food")
	testutil.CreateProduct(t, gdb, cat.ID, "Green Tea", "3.00", 1)
	testutil.CreateProduct(t, gdb, cat.ID, "Black Tea", "2.00", 1)
	testutil.CreateProduct(t, gdb, other.ID, "Bread", "1.00", 1)
	hidden := testutil.CreateProduct(t, gdb, cat.ID, "Old Tea", "9.00", 1)
	products := infraRepo.NewProductGormRepository(gdb)
	ctx := context.Background()
	require.NoError(t, products.Deactivate(ctx, hidden.ID))

	list, total, err := products.List(ctx, repo.ProductListQuery{ActiveOnly: true, Q: "tea", Sort: "price_asc", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Equal(t, "Black Tea", list[0].Name)

	list, total, err = products.List(ctx, repo.ProductListQuery{CategoryID: &cat.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 3)

	n, err := products.CountByCategory(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProduct_FindByIDForUpdate(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	cat := testutil.CreateCategory(t, gdb, "General")
	p := testutil.CreateProduct(t, gdb, cat.ID, "Rice", "10.00", 7)
	products := infraRepo.NewProductGormRepository(gdb)
	ctx := context.Background()

	err := infraRepo.NewTxManagerGorm(gdb).WithinTx(ctx, func(r repo.TxRepos) error {
		got, err := r.Products().FindByIDForUpdate(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.Stock)
		return nil
	})
	require.NoError(t, err)

	_, err = products.FindByIDForUpdate(ctx, p.ID+100)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCartItem_DeleteByProductID(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	cat := testutil.CreateCategory(t, gdb, "General")
	a := testutil.CreateProduct(t, gdb, cat.ID, "A", "1.00", 5)
	b := testutil.CreateProduct(t, gdb, cat.ID, "B", "1.00", 5)
	u1 := testutil.CreateUser(t, gdb, "u1@example.com", model.RoleCustomer)
	u2 := testutil.CreateUser(t, gdb, "u2@example.com", model.RoleCustomer)
	testutil.AddToCart(t, gdb, u1.ID, a.ID, 1)
	testutil.AddToCart(t, gdb, u1.ID, b.ID, 2)
	testutil.AddToCart(t, gdb, u2.ID, b.ID, 3)

	cart := infraRepo.NewCartItemGormRepository(gdb)
	require.NoError(t, cart.DeleteByProductID(context.Background(), b.ID))

	assert.Equal(t, int64(1), testutil.CartCount(t, gdb, u1.ID))
	assert.Equal(t, int64(0), testutil.CartCount(t, gdb, u2.ID))
}
