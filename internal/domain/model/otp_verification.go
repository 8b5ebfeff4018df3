package model

import "time"

// メール確認用のワンタイムコード。再送しても古いコードは消さない
type OTPVerification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);not null;index:idx_otp_email_code" json:"email"`
	Code      string    `gorm:"type:varchar(6);not null;index:idx_otp_email_code" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	IsUsed    bool      `gorm:"not null" json:"is_used"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (o OTPVerification) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
