package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newCartFixture(t *testing.T) (*gorm.DB, *usecase.CartUsecase, usecase.Actor, model.Category) {
	t.Helper()
	gdb := testutil.NewSQLite(t)
	uc := usecase.NewCartUsecase(infraRepo.NewCartItemGormRepository(gdb), infraRepo.NewProductGormRepository(gdb))
	u := testutil.CreateUser(t, gdb, "cart@example.com", model.RoleCustomer)
	return gdb, uc, usecase.Actor{UserID: u.ID, Role: model.RoleCustomer}, testutil.CreateCategory(t, gdb, "Misc")
}

func TestCartAddItem_MergesAndClampsToStock(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "2.50", 5)

	view, err := uc.AddItem(context.Background(), actor, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(2), view.Count)
	assert.True(t, decimal.RequireFromString("5").Equal(view.Subtotal))

	view, err = uc.AddItem(context.Background(), actor, p.ID, 4)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int64(5), view.Items[0].Quantity)

	n, err := uc.Count(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCartAddItem_Unavailable(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "2.50", 1)

	_, err := uc.AddItem(context.Background(), actor, p.ID, 2)
	assert.ErrorIs(t, err, usecase.ErrProductUnavailable)

	_, err = uc.AddItem(context.Background(), actor, 9999, 1)
	assert.ErrorIs(t, err, usecase.ErrProductUnavailable)

	_, err = uc.AddItem(context.Background(), actor, p.ID, 0)
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestCartUpdateQuantity(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "2.50", 3)
	view, err := uc.AddItem(context.Background(), actor, p.ID, 1)
	require.NoError(t, err)
	itemID := view.Items[0].ID

	_, err = uc.UpdateQuantity(context.Background(), actor, itemID, 4)
	assert.ErrorIs(t, err, usecase.ErrInsufficientStock)

	view, err = uc.UpdateQuantity(context.Background(), actor, itemID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.Items[0].Quantity)

	//0は削除
	view, err = uc.UpdateQuantity(context.Background(), actor, itemID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestCart_OtherUsersItemIsNotFound(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "2.50", 3)
	view, err := uc.AddItem(context.Background(), actor, p.ID, 1)
	require.NoError(t, err)

	other := testutil.CreateUser(t, gdb, "other@example.com", model.RoleCustomer)
	otherActor := usecase.Actor{UserID: other.ID, Role: model.RoleCustomer}

	_, err = uc.RemoveItem(context.Background(), otherActor, view.Items[0].ID)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
	assert.Equal(t, int64(1), testutil.CartCount(t, gdb, actor.UserID))
}

func TestCartGetCart_UsesDiscountPrice(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "10.00", 3)
	require.NoError(t, gdb.Model(&model.Product{}).Where("id = ?", p.ID).Update("discount_price", decimal.RequireFromString("7.50")).Error)
	testutil.AddToCart(t, gdb, actor.UserID, p.ID, 2)

	view, err := uc.GetCart(context.Background(), actor)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("15").Equal(view.Subtotal))
}

func TestCartClear(t *testing.T) {
	gdb, uc, actor, cat := newCartFixture(t)
	p := testutil.CreateProduct(t, gdb, cat.ID, "Pen", "2.50", 3)
	testutil.AddToCart(t, gdb, actor.UserID, p.ID, 2)

	require.NoError(t, uc.Clear(context.Background(), actor))
	assert.Zero(t, testutil.CartCount(t, gdb, actor.UserID))
}
