package usecase

import (
	"storefront/internal/domain/model"
)

// リクエストごとの認証済みユーザー。middlewareが作ってhandlerが渡す
type Actor struct {
	UserID int64
	Role   model.Role
	IP     string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// 操作ごとの権限
type Permission string

const (
	PermShop            Permission = "shop"
	PermManageCatalog   Permission = "catalog:manage"
	PermManageOrders    Permission = "orders:manage"
	PermManageUsers     Permission = "users:manage"
	PermViewReports     Permission = "reports:view"
	PermViewAuditLogs   Permission = "audit:view"
	PermManageInventory Permission = "inventory:manage"
)

var rolePermissions = map[model.Role]map[Permission]bool{
	model.RoleCustomer: {
		PermShop: true,
	},
	model.RoleAdmin: {
		PermShop:            true,
		PermManageCatalog:   true,
		PermManageOrders:    true,
		PermManageUsers:     true,
		PermViewReports:     true,
		PermViewAuditLogs:   true,
		PermManageInventory: true,
	},
}

// 未ログインは401、権限なしは403
func Authorize(a Actor, p Permission) error {
	if a.UserID <= 0 || !a.Role.Valid() {
		return NewAppError(KindUnauthorized, "unauthorized")
	}
	if !rolePermissions[a.Role][p] {
		return NewAppError(KindForbidden, "forbidden")
	}
	return nil
}
