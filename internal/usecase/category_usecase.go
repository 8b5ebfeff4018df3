package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

type CategoryUsecase struct {
	categories repo.CategoryRepository
	products   repo.ProductRepository
	audit      auditRecorder
	clock      Clock
}

func NewCategoryUsecase(categories repo.CategoryRepository, products repo.ProductRepository, audits repo.AuditLogRepository, clock Clock, log *zap.Logger) *CategoryUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	return &CategoryUsecase{
		categories: categories,
		products:   products,
		audit:      newAuditRecorder(audits, log, clock),
		clock:      clock,
	}
}

// 公開中のカテゴリだけ
func (u *CategoryUsecase) ListPublic(ctx context.Context) ([]model.Category, error) {
	list, err := u.categories.List(ctx, true)
	if err != nil {
		return nil, dbError(err)
	}
	return list, nil
}

func (u *CategoryUsecase) AdminList(ctx context.Context, actor Actor) ([]model.Category, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return nil, err
	}
	list, err := u.categories.List(ctx, false)
	if err != nil {
		return nil, dbError(err)
	}
	return list, nil
}

type CategoryInput struct {
	Name        string
	Description string
	IsActive    bool
}

func (in CategoryInput) validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fieldError("name", "required")
	}
	if len(name) > 100 {
		return fieldError("name", "must be at most 100 characters")
	}
	return nil
}

func (u *CategoryUsecase) Create(ctx context.Context, actor Actor, in CategoryInput) (model.Category, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Category{}, err
	}
	if err := in.validate(); err != nil {
		return model.Category{}, err
	}

	c, err := u.categories.Create(ctx, model.Category{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive,
		CreatedAt:   u.clock.Now(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Category{}, NewAppError(KindConflict, "category name already exists")
	}
	if err != nil {
		return model.Category{}, dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionCreateCategory,
		resourceType: model.AuditResourceCategory,
		resourceID:   c.ID,
		description:  "created category " + c.Name,
		after:        c,
	})
	return c, nil
}

func (u *CategoryUsecase) Update(ctx context.Context, actor Actor, id int64, in CategoryInput) (model.Category, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Category{}, err
	}
	if err := in.validate(); err != nil {
		return model.Category{}, err
	}
	before, err := u.categories.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Category{}, notFound("category")
	}
	if err != nil {
		return model.Category{}, dbError(err)
	}

	after := before
	after.Name = strings.TrimSpace(in.Name)
	after.Description = strings.TrimSpace(in.Description)
	after.IsActive = in.IsActive

	err = u.categories.Update(ctx, after)
	if errors.Is(err, repo.ErrDuplicate) {
		return model.Category{}, NewAppError(KindConflict, "category name already exists")
	}
	if err != nil {
		return model.Category{}, dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionUpdateCategory,
		resourceType: model.AuditResourceCategory,
		resourceID:   after.ID,
		description:  "updated category " + after.Name,
		before:       before,
		after:        after,
	})
	return after, nil
}

// 商品が残っているカテゴリは消せない
func (u *CategoryUsecase) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return err
	}
	c, err := u.categories.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound("category")
	}
	if err != nil {
		return dbError(err)
	}

	n, err := u.products.CountByCategory(ctx, id)
	if err != nil {
		return dbError(err)
	}
	if n > 0 {
		return NewAppError(KindConflict, "category still has products")
	}

	if err := u.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("category")
		}
		return dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionDeleteCategory,
		resourceType: model.AuditResourceCategory,
		resourceID:   id,
		description:  "deleted category " + c.Name,
		before:       c,
	})
	return nil
}
