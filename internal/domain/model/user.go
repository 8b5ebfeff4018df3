package model

import (
	"strings"
	"time"
)

// ロールは閉じた列挙。文字列比較はParseRoleを通す
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin:
		return true
	}
	return false
}

// JWTのclaimなど外から来た文字列をRoleにする
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", false
	}
	return r, true
}

type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`

	FirstName  string `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName   string `gorm:"type:varchar(100);not null" json:"last_name"`
	Phone      string `gorm:"type:varchar(30)" json:"phone"`
	Address    string `gorm:"type:varchar(255)" json:"address"`
	City       string `gorm:"type:varchar(100)" json:"city"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`

	Role          Role `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive      bool `gorm:"not null" json:"is_active"`
	EmailVerified bool `gorm:"not null" json:"email_verified"`

	//JWTのtvと比較する。上げると既存トークンは無効
	TokenVersion int `gorm:"not null;default:0" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
