package model

import "time"

// 保存済みの配送先。注文時はスナップショットとしてOrderにコピーする
type Address struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`

	//宛名
	Name string `gorm:"type:varchar(255);not null" json:"name"`

	//番地・建物名など
	Line1 string `gorm:"type:varchar(255);not null" json:"line1"`

	City       string `gorm:"type:varchar(100);not null" json:"city"`
	PostalCode string `gorm:"type:varchar(20)" json:"postal_code"`
	Phone      string `gorm:"type:varchar(30);not null" json:"phone"`

	//このユーザーのデフォルト住所か
	IsDefault bool `gorm:"not null" json:"is_default"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
