package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxImageBytes = 5 << 20

var imageExts = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

type ProductDeps struct {
	Tx         repo.TransactionManager
	Products   repo.ProductRepository
	Inventory  repo.InventoryRepository
	Categories repo.CategoryRepository
	AuditLogs  repo.AuditLogRepository

	//未設定なら画像アップロードは使えない
	Images ImageStore

	Clock Clock
	IDs   IDGenerator
	Log   *zap.Logger
}

type ProductUsecase struct {
	tx         repo.TransactionManager
	products   repo.ProductRepository
	inventory  repo.InventoryRepository
	categories repo.CategoryRepository
	images     ImageStore

	audit auditRecorder
	clock Clock
	ids   IDGenerator
}

func NewProductUsecase(d ProductDeps) *ProductUsecase {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.IDs == nil {
		d.IDs = UUIDGenerator()
	}
	return &ProductUsecase{
		tx:         d.Tx,
		products:   d.Products,
		inventory:  d.Inventory,
		categories: d.Categories,
		images:     d.Images,
		audit:      newAuditRecorder(d.AuditLogs, d.Log, d.Clock),
		clock:      d.Clock,
		ids:        d.IDs,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page       int
	Limit      int
	Q          string
	CategoryID *int64
	Sort       string
}

func (in ListProductsInput) query(activeOnly bool) (repo.ProductListQuery, error) {
	if len(in.Q) > 100 {
		return repo.ProductListQuery{}, fieldError("q", "too long")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc", "name":
	default:
		return repo.ProductListQuery{}, fieldError("sort", "must be one of new, price_asc, price_desc, name")
	}
	page, limit := normalizePage(in.Page, in.Limit, 12, 100)
	return repo.ProductListQuery{
		Page:       page,
		Limit:      limit,
		Q:          strings.TrimSpace(in.Q),
		CategoryID: in.CategoryID,
		ActiveOnly: activeOnly,
		Sort:       in.Sort,
	}, nil
}

func (u *ProductUsecase) ListPublic(ctx context.Context, in ListProductsInput) (Page[model.Product], error) {
	return u.list(ctx, in, true)
}

func (u *ProductUsecase) AdminList(ctx context.Context, actor Actor, in ListProductsInput) (Page[model.Product], error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return Page[model.Product]{}, err
	}
	return u.list(ctx, in, false)
}

func (u *ProductUsecase) list(ctx context.Context, in ListProductsInput, activeOnly bool) (Page[model.Product], error) {
	q, err := in.query(activeOnly)
	if err != nil {
		return Page[model.Product]{}, err
	}
	items, total, err := u.products.List(ctx, q)
	if err != nil {
		return Page[model.Product]{}, dbError(err)
	}
	return Page[model.Product]{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// 非公開商品は存在しない扱い
func (u *ProductUsecase) GetPublic(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.find(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}
	if !p.IsActive {
		return model.Product{}, notFound("product")
	}
	return p, nil
}

func (u *ProductUsecase) AdminGet(ctx context.Context, actor Actor, productID int64) (model.Product, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Product{}, err
	}
	return u.find(ctx, productID)
}

func (u *ProductUsecase) find(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, fieldError("id", "invalid product id")
	}
	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFound("product")
	}
	if err != nil {
		return model.Product{}, dbError(err)
	}
	return p, nil
}

type ProductInput struct {
	CategoryID    int64
	Name          string
	Description   string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	IsActive      bool

	//作成時のみ使う。以降の変更は在庫調整で
	Stock int64
}

func (u *ProductUsecase) validateInput(ctx context.Context, in ProductInput) error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if !in.Price.IsPositive() {
		fields["price"] = "must be greater than 0"
	}
	if in.DiscountPrice != nil {
		if in.DiscountPrice.IsNegative() {
			fields["discount_price"] = "must be >= 0"
		} else if !in.DiscountPrice.LessThan(in.Price) {
			fields["discount_price"] = "must be less than price"
		}
	}
	if in.Stock < 0 {
		fields["stock"] = "must be >= 0"
	}
	if in.CategoryID <= 0 {
		fields["category_id"] = "required"
	}
	if len(fields) > 0 {
		return validationError("invalid product", fields)
	}

	if _, err := u.categories.FindByID(ctx, in.CategoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fieldError("category_id", "category does not exist")
		}
		return dbError(err)
	}
	return nil
}

func (u *ProductUsecase) Create(ctx context.Context, actor Actor, in ProductInput) (model.Product, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Product{}, err
	}
	if err := u.validateInput(ctx, in); err != nil {
		return model.Product{}, err
	}

	now := u.clock.Now()
	p, err := u.products.Create(ctx, model.Product{
		CategoryID:    in.CategoryID,
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price.Round(2),
		DiscountPrice: roundPtr(in.DiscountPrice),
		Stock:         in.Stock,
		IsActive:      in.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return model.Product{}, dbError(err)
	}

	if p.Stock > 0 {
		u.recordAdjustment(ctx, model.InventoryAdjustment{
			ProductID:        p.ID,
			AdminUserID:      actor.UserID,
			Action:           model.InventoryActionStockAddition,
			PreviousQuantity: 0,
			NewQuantity:      p.Stock,
			Delta:            p.Stock,
			Reason:           "initial stock",
			CreatedAt:        now,
		})
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionCreateProduct,
		resourceType: model.AuditResourceProduct,
		resourceID:   p.ID,
		description:  "created product " + p.Name,
		after:        p,
	})
	return p, nil
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
}

func (u *ProductUsecase) Update(ctx context.Context, actor Actor, productID int64, in ProductInput) (model.Product, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Product{}, err
	}
	before, err := u.find(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}
	in.Stock = 0
	if err := u.validateInput(ctx, in); err != nil {
		return model.Product{}, err
	}

	after := before
	after.CategoryID = in.CategoryID
	after.Name = strings.TrimSpace(in.Name)
	after.Description = strings.TrimSpace(in.Description)
	after.Price = in.Price.Round(2)
	after.DiscountPrice = roundPtr(in.DiscountPrice)
	after.IsActive = in.IsActive
	after.UpdatedAt = u.clock.Now()

	if err := u.products.Update(ctx, after); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, notFound("product")
		}
		return model.Product{}, dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionUpdateProduct,
		resourceType: model.AuditResourceProduct,
		resourceID:   after.ID,
		description:  "updated product " + after.Name,
		before:       before,
		after:        after,
	})
	return after, nil
}

type DeleteProductResult struct {
	ProductID int64 `json:"product_id"`

	// "deleted" / "deactivated"
	Mode string `json:"mode"`
}

// 注文明細から参照されていれば非公開にするだけ、無ければ物理削除
func (u *ProductUsecase) Delete(ctx context.Context, actor Actor, productID int64) (DeleteProductResult, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return DeleteProductResult{}, err
	}
	p, err := u.find(ctx, productID)
	if err != nil {
		return DeleteProductResult{}, err
	}

	res := DeleteProductResult{ProductID: p.ID}
	action := model.AuditActionDeleteProduct
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ordered, err := r.OrderItems().ExistsByProductID(ctx, p.ID)
		if err != nil {
			return err
		}
		if ordered {
			res.Mode = "deactivated"
			action = model.AuditActionDeactivateProduct
			return r.Products().Deactivate(ctx, p.ID)
		}
		res.Mode = "deleted"
		//他ユーザーのカート明細も一緒に消す
		if err := r.CartItems().DeleteByProductID(ctx, p.ID); err != nil {
			return err
		}
		return r.Products().Delete(ctx, p.ID)
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return DeleteProductResult{}, notFound("product")
		}
		return DeleteProductResult{}, dbError(err)
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       action,
		resourceType: model.AuditResourceProduct,
		resourceID:   p.ID,
		description:  res.Mode + " product " + p.Name,
		before:       p,
	})
	return res, nil
}

type StockAdjustmentInput struct {
	Action   string
	Quantity int64
	Reason   string
}

type StockAdjustmentResult struct {
	Product    model.Product             `json:"product"`
	Adjustment model.InventoryAdjustment `json:"adjustment"`
}

// 在庫調整。ADDITION/RETURNは加算、ADJUSTMENTは指定値に設定、それ以外は減算
func (u *ProductUsecase) AdjustStock(ctx context.Context, actor Actor, productID int64, in StockAdjustmentInput) (StockAdjustmentResult, error) {
	if err := Authorize(actor, PermManageInventory); err != nil {
		return StockAdjustmentResult{}, err
	}
	action, ok := model.ParseInventoryAction(in.Action)
	if !ok {
		return StockAdjustmentResult{}, fieldError("action", "invalid action")
	}
	if in.Quantity < 0 || (in.Quantity == 0 && action != model.InventoryActionAdjustment) {
		return StockAdjustmentResult{}, fieldError("quantity", "must be positive")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return StockAdjustmentResult{}, fieldError("reason", "required")
	}
	if productID <= 0 {
		return StockAdjustmentResult{}, fieldError("id", "invalid product id")
	}

	var out StockAdjustmentResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cur, err := r.Products().FindByIDForUpdate(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("product")
		}
		if err != nil {
			return dbError(err)
		}

		var delta int64
		switch action {
		case model.InventoryActionStockAddition, model.InventoryActionReturn:
			delta = in.Quantity
			err = r.Inventory().IncreaseStock(ctx, productID, in.Quantity)
		case model.InventoryActionAdjustment:
			delta = in.Quantity - cur.Stock
			err = r.Inventory().SetStock(ctx, productID, in.Quantity)
		default:
			delta = -in.Quantity
			var decreased bool
			decreased, err = r.Inventory().DecreaseStockIfEnough(ctx, productID, in.Quantity)
			if err == nil && !decreased {
				return &AppError{
					Kind:    KindInsufficientStock,
					Message: fmt.Sprintf("cannot remove %d of %s, only %d in stock", in.Quantity, cur.Name, cur.Stock),
					Fields:  map[string]string{"quantity": fmt.Sprintf("max %d", cur.Stock)},
				}
			}
		}
		if err != nil {
			return dbError(err)
		}

		//更新後を読み直して履歴は実際の値で残す
		updated, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return dbError(err)
		}
		adj := model.InventoryAdjustment{
			ProductID:        productID,
			AdminUserID:      actor.UserID,
			Action:           action,
			PreviousQuantity: updated.Stock - delta,
			NewQuantity:      updated.Stock,
			Delta:            delta,
			Reason:           reason,
			CreatedAt:        u.clock.Now(),
		}
		if err := r.Inventory().CreateAdjustment(ctx, adj); err != nil {
			return dbError(err)
		}
		out = StockAdjustmentResult{Product: updated, Adjustment: adj}
		return nil
	})
	if err != nil {
		return StockAdjustmentResult{}, err
	}

	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionUpdateStock,
		resourceType: model.AuditResourceProduct,
		resourceID:   productID,
		description:  fmt.Sprintf("%s %+d (%s)", action, out.Adjustment.Delta, reason),
		before:       map[string]int64{"stock": out.Adjustment.PreviousQuantity},
		after:        map[string]int64{"stock": out.Adjustment.NewQuantity},
	})
	return out, nil
}

func (u *ProductUsecase) ListAdjustments(ctx context.Context, actor Actor, productID int64, limit int) ([]model.InventoryAdjustment, error) {
	if err := Authorize(actor, PermManageInventory); err != nil {
		return nil, err
	}
	if _, err := u.find(ctx, productID); err != nil {
		return nil, err
	}
	_, limit = normalizePage(1, limit, 50, 200)
	list, err := u.inventory.ListAdjustments(ctx, productID, limit)
	if err != nil {
		return nil, dbError(err)
	}
	return list, nil
}

func (u *ProductUsecase) recordAdjustment(ctx context.Context, adj model.InventoryAdjustment) {
	if err := u.inventory.CreateAdjustment(ctx, adj); err != nil {
		u.audit.log.Warn("inventory adjustment write failed", zap.Int64("product_id", adj.ProductID), zap.Error(err))
	}
}

type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u *ProductUsecase) UploadImage(ctx context.Context, actor Actor, productID int64, img ImageUpload) (model.Product, error) {
	if err := Authorize(actor, PermManageCatalog); err != nil {
		return model.Product{}, err
	}
	if u.images == nil {
		return model.Product{}, externalError("image storage is not configured", nil)
	}
	ext, ok := imageExts[strings.ToLower(img.ContentType)]
	if !ok {
		return model.Product{}, fieldError("image", "must be jpeg, png, webp or gif")
	}
	if len(img.Data) == 0 || len(img.Data) > maxImageBytes {
		return model.Product{}, fieldError("image", "must be between 1 byte and 5MB")
	}

	p, err := u.find(ctx, productID)
	if err != nil {
		return model.Product{}, err
	}

	key := path.Join("products", fmt.Sprint(p.ID), u.ids.NewID()+ext)
	url, err := u.images.Put(ctx, key, img.Data, img.ContentType)
	if err != nil {
		return model.Product{}, externalError("image upload failed", err)
	}
	if err := u.products.SetImageURL(ctx, p.ID, url); err != nil {
		return model.Product{}, dbError(err)
	}

	before := p.ImageURL
	p.ImageURL = url
	u.audit.record(ctx, auditEntry{
		actor:        actor,
		action:       model.AuditActionUploadImage,
		resourceType: model.AuditResourceProduct,
		resourceID:   p.ID,
		description:  "uploaded image " + img.Filename,
		before:       map[string]string{"image_url": before},
		after:        map[string]string{"image_url": url},
	})
	return p, nil
}
