package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type AddressInput struct {
	Name       string
	Line1      string
	City       string
	PostalCode string
	Phone      string
}

func (in AddressInput) normalize() (AddressInput, error) {
	out := AddressInput{
		Name:       strings.TrimSpace(in.Name),
		Line1:      strings.TrimSpace(in.Line1),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Phone:      strings.TrimSpace(in.Phone),
	}
	fields := map[string]string{}
	if out.Name == "" {
		fields["name"] = "required"
	}
	if out.Line1 == "" {
		fields["line1"] = "required"
	}
	if out.City == "" {
		fields["city"] = "required"
	}
	if out.Phone == "" {
		fields["phone"] = "required"
	}
	if len(fields) > 0 {
		return AddressInput{}, validationError("invalid address", fields)
	}
	return out, nil
}

// 保存済み配送先
type AddressUsecase struct {
	addresses repository.AddressRepository
	clock     Clock
}

func NewAddressUsecase(addresses repository.AddressRepository, clock Clock) *AddressUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	return &AddressUsecase{addresses: addresses, clock: clock}
}

func (u *AddressUsecase) List(ctx context.Context, actor Actor) ([]model.Address, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return nil, err
	}
	list, err := u.addresses.ListByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, dbError(err)
	}
	return list, nil
}

// 最初の住所は自動でデフォルト
func (u *AddressUsecase) Create(ctx context.Context, actor Actor, in AddressInput) (model.Address, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return model.Address{}, err
	}
	in, err := in.normalize()
	if err != nil {
		return model.Address{}, err
	}

	existing, err := u.addresses.ListByUserID(ctx, actor.UserID)
	if err != nil {
		return model.Address{}, dbError(err)
	}

	now := u.clock.Now()
	created, err := u.addresses.Create(ctx, model.Address{
		UserID:     actor.UserID,
		Name:       in.Name,
		Line1:      in.Line1,
		City:       in.City,
		PostalCode: in.PostalCode,
		Phone:      in.Phone,
		IsDefault:  len(existing) == 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return model.Address{}, dbError(err)
	}
	return created, nil
}

func (u *AddressUsecase) Update(ctx context.Context, actor Actor, addressID int64, in AddressInput) (model.Address, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return model.Address{}, err
	}
	a, err := u.owned(ctx, actor, addressID)
	if err != nil {
		return model.Address{}, err
	}
	in, err = in.normalize()
	if err != nil {
		return model.Address{}, err
	}

	a.Name = in.Name
	a.Line1 = in.Line1
	a.City = in.City
	a.PostalCode = in.PostalCode
	a.Phone = in.Phone
	a.UpdatedAt = u.clock.Now()

	if err := u.addresses.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Address{}, notFound("address")
		}
		return model.Address{}, dbError(err)
	}
	return a, nil
}

func (u *AddressUsecase) Delete(ctx context.Context, actor Actor, addressID int64) error {
	if err := Authorize(actor, PermShop); err != nil {
		return err
	}
	if _, err := u.owned(ctx, actor, addressID); err != nil {
		return err
	}
	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("address")
		}
		return dbError(err)
	}
	return nil
}

func (u *AddressUsecase) SetDefault(ctx context.Context, actor Actor, addressID int64) error {
	if err := Authorize(actor, PermShop); err != nil {
		return err
	}
	if _, err := u.owned(ctx, actor, addressID); err != nil {
		return err
	}
	if err := u.addresses.SetDefault(ctx, actor.UserID, addressID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("address")
		}
		return dbError(err)
	}
	return nil
}

// 他人の住所は404
func (u *AddressUsecase) owned(ctx context.Context, actor Actor, addressID int64) (model.Address, error) {
	if addressID <= 0 {
		return model.Address{}, fieldError("id", "invalid id")
	}
	a, err := u.addresses.FindByID(ctx, addressID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && a.UserID != actor.UserID) {
		return model.Address{}, notFound("address")
	}
	if err != nil {
		return model.Address{}, dbError(err)
	}
	return a, nil
}
