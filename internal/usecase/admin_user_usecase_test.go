package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminUsers(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	users := infraRepo.NewUserGormRepository(gdb)
	uc := usecase.NewAdminUserUsecase(users, infraRepo.NewRefreshTokenRepository(gdb), infraRepo.NewAuditLogGormRepository(gdb), nil, nil)
	ctx := context.Background()

	a := testutil.CreateUser(t, gdb, "admin@example.com", model.RoleAdmin)
	admin := usecase.Actor{UserID: a.ID, Role: model.RoleAdmin}
	c := testutil.CreateUser(t, gdb, "shopper@example.com", model.RoleCustomer)

	t.Run("list by role", func(t *testing.T) {
		page, err := uc.List(ctx, admin, usecase.AdminUserListInput{Role: "customer"})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "shopper@example.com", page.Items[0].Email)

		_, err = uc.List(ctx, admin, usecase.AdminUserListInput{Role: "root"})
		assert.ErrorIs(t, err, usecase.ErrValidation)
	})

	t.Run("toggle active revokes sessions", func(t *testing.T) {
		out, err := uc.ToggleActive(ctx, admin, c.ID)
		require.NoError(t, err)
		assert.False(t, out.IsActive)
		assert.Equal(t, 1, out.TokenVersion)

		out, err = uc.ToggleActive(ctx, admin, c.ID)
		require.NoError(t, err)
		assert.True(t, out.IsActive)
	})

	t.Run("cannot modify self", func(t *testing.T) {
		_, err := uc.ToggleActive(ctx, admin, a.ID)
		assert.ErrorIs(t, err, usecase.ErrForbidden)
		assert.ErrorIs(t, uc.Delete(ctx, admin, a.ID), usecase.ErrForbidden)
	})

	t.Run("customer cannot manage users", func(t *testing.T) {
		_, err := uc.List(ctx, usecase.Actor{UserID: c.ID, Role: model.RoleCustomer}, usecase.AdminUserListInput{})
		assert.ErrorIs(t, err, usecase.ErrForbidden)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, uc.Delete(ctx, admin, c.ID))
		assert.ErrorIs(t, uc.Delete(ctx, admin, c.ID), usecase.ErrNotFound)
	})
}
