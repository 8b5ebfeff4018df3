package usecase

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック
// カートは (user, product) の明細だけで持つ
type CartUsecase struct {
	items    repo.CartItemRepository
	products repo.ProductRepository
}

func NewCartUsecase(items repo.CartItemRepository, products repo.ProductRepository) *CartUsecase {
	return &CartUsecase{items: items, products: products}
}

// 価格は常に現在の商品から計算（注文時にスナップショット）
type CartLine struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
	Stock     int64           `json:"stock"`
	Available bool            `json:"available"`
}

type CartView struct {
	Items    []CartLine      `json:"items"`
	Count    int64           `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (u *CartUsecase) GetCart(ctx context.Context, actor Actor) (CartView, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return CartView{}, err
	}

	items, err := u.items.ListByUserID(ctx, actor.UserID)
	if err != nil {
		return CartView{}, dbError(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := u.products.ListByIDs(ctx, ids)
	if err != nil {
		return CartView{}, dbError(err)
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	view := CartView{Items: make([]CartLine, 0, len(items)), Subtotal: decimal.Zero}
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			//商品が物理削除された明細は表示しない
			continue
		}
		unit := p.EffectivePrice()
		line := CartLine{
			ID:        it.ID,
			ProductID: p.ID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			UnitPrice: unit,
			Quantity:  it.Quantity,
			LineTotal: unit.Mul(decimal.NewFromInt(it.Quantity)),
			Stock:     p.Stock,
			Available: p.Purchasable(it.Quantity),
		}
		view.Items = append(view.Items, line)
		view.Count += it.Quantity
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
	}
	return view, nil
}

func (u *CartUsecase) Count(ctx context.Context, actor Actor) (int64, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return 0, err
	}
	n, err := u.items.SumQuantity(ctx, actor.UserID)
	if err != nil {
		return 0, dbError(err)
	}
	return n, nil
}

// 追加。既にある商品は数量を合算し、在庫を超える分は黙って在庫数に丸める
func (u *CartUsecase) AddItem(ctx context.Context, actor Actor, productID int64, qty int64) (CartView, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return CartView{}, err
	}
	if productID <= 0 {
		return CartView{}, fieldError("product_id", "invalid product_id")
	}
	if qty < 1 {
		return CartView{}, fieldError("quantity", "must be at least 1")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartView{}, unavailable(productID, "product not found")
	}
	if err != nil {
		return CartView{}, dbError(err)
	}
	if !p.Purchasable(qty) {
		return CartView{}, unavailable(productID, fmt.Sprintf("%s is not available in the requested quantity", p.Name))
	}

	if err := u.mergeLine(ctx, actor.UserID, p, qty); err != nil {
		return CartView{}, err
	}
	return u.GetCart(ctx, actor)
}

func (u *CartUsecase) mergeLine(ctx context.Context, userID int64, p model.Product, qty int64) error {
	existing, err := u.items.FindByUserAndProduct(ctx, userID, p.ID)
	switch {
	case err == nil:
		err = u.items.UpdateQuantity(ctx, existing.ID, min(existing.Quantity+qty, p.Stock))
		if err != nil {
			return dbError(err)
		}
		return nil
	case !errors.Is(err, repo.ErrNotFound):
		return dbError(err)
	}

	_, err = u.items.Create(ctx, model.CartItem{UserID: userID, ProductID: p.ID, Quantity: qty})
	if errors.Is(err, repo.ErrDuplicate) {
		//同時に追加された。もう一度合算する
		existing, err = u.items.FindByUserAndProduct(ctx, userID, p.ID)
		if err != nil {
			return dbError(err)
		}
		err = u.items.UpdateQuantity(ctx, existing.ID, min(existing.Quantity+qty, p.Stock))
	}
	if err != nil {
		return dbError(err)
	}
	return nil
}

// 数量変更。0以下は削除、在庫超過はエラーでカートは変えない
func (u *CartUsecase) UpdateQuantity(ctx context.Context, actor Actor, cartItemID int64, qty int64) (CartView, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return CartView{}, err
	}
	item, err := u.ownedItem(ctx, actor, cartItemID)
	if err != nil {
		return CartView{}, err
	}

	if qty <= 0 {
		if err := u.items.DeleteByID(ctx, item.ID); err != nil {
			return CartView{}, dbError(err)
		}
		return u.GetCart(ctx, actor)
	}

	p, err := u.products.FindByID(ctx, item.ProductID)
	if errors.Is(err, repo.ErrNotFound) {
		return CartView{}, unavailable(item.ProductID, "product not found")
	}
	if err != nil {
		return CartView{}, dbError(err)
	}
	if !p.IsActive {
		return CartView{}, unavailable(p.ID, p.Name+" is no longer available")
	}
	if qty > p.Stock {
		return CartView{}, &AppError{
			Kind:    KindInsufficientStock,
			Message: fmt.Sprintf("only %d of %s in stock", p.Stock, p.Name),
			Fields:  map[string]string{"quantity": fmt.Sprintf("max %d", p.Stock)},
		}
	}

	if err := u.items.UpdateQuantity(ctx, item.ID, qty); err != nil {
		return CartView{}, dbError(err)
	}
	return u.GetCart(ctx, actor)
}

func (u *CartUsecase) RemoveItem(ctx context.Context, actor Actor, cartItemID int64) (CartView, error) {
	if err := Authorize(actor, PermShop); err != nil {
		return CartView{}, err
	}
	item, err := u.ownedItem(ctx, actor, cartItemID)
	if err != nil {
		return CartView{}, err
	}
	if err := u.items.DeleteByID(ctx, item.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return CartView{}, dbError(err)
	}
	return u.GetCart(ctx, actor)
}

func (u *CartUsecase) Clear(ctx context.Context, actor Actor) error {
	if err := Authorize(actor, PermShop); err != nil {
		return err
	}
	if err := u.items.ClearByUserID(ctx, actor.UserID); err != nil {
		return dbError(err)
	}
	return nil
}

// 他人の明細は存在しない扱い
func (u *CartUsecase) ownedItem(ctx context.Context, actor Actor, cartItemID int64) (model.CartItem, error) {
	if cartItemID <= 0 {
		return model.CartItem{}, fieldError("id", "invalid id")
	}
	item, err := u.items.FindByID(ctx, cartItemID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && item.UserID != actor.UserID) {
		return model.CartItem{}, notFound("cart item")
	}
	if err != nil {
		return model.CartItem{}, dbError(err)
	}
	return item, nil
}

func unavailable(productID int64, msg string) error {
	return &AppError{
		Kind:    KindProductUnavailable,
		Message: msg,
		Fields:  map[string]string{"product_id": fmt.Sprint(productID)},
	}
}
