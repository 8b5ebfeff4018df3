package repository

import (
	"context"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type OTPGormRepository struct {
	db *gorm.DB
}

func NewOTPGormRepository(db *gorm.DB) *OTPGormRepository {
	return &OTPGormRepository{db: db}
}

func (r *OTPGormRepository) Create(ctx context.Context, otp *model.OTPVerification) error {
	otp.Email = strings.ToLower(otp.Email)
	return r.db.WithContext(ctx).Create(otp).Error
}

// 期限は見ない（期限切れの判定はusecase側）
func (r *OTPGormRepository) FindLatestUnused(ctx context.Context, email string, code string) (model.OTPVerification, error) {
	var o model.OTPVerification
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ? AND is_used = ?", strings.ToLower(email), code, false).
		Order("created_at desc").
		Order("id desc").
		First(&o).Error
	if isNotFound(err) {
		return model.OTPVerification{}, repo.ErrNotFound
	}
	if err != nil {
		return model.OTPVerification{}, err
	}
	return o, nil
}

func (r *OTPGormRepository) MarkUsed(ctx context.Context, otpID int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.OTPVerification{}).
		Where("id = ? AND is_used = ?", otpID, false).
		Update("is_used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrStaleState
	}
	return nil
}
