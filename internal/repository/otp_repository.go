package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type OTPRepository interface {
	Create(ctx context.Context, otp *model.OTPVerification) error

	//email + code + 未使用 を新しい順で1件
	FindLatestUnused(ctx context.Context, email string, code string) (model.OTPVerification, error)

	//未使用のときだけ使用済みにする（0件ならErrStaleState）
	MarkUsed(ctx context.Context, otpID int64) error
}
