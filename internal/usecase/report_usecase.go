package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/shopspring/decimal"
)

const lowStockThreshold = 10

type ReportUsecase struct {
	reports repository.ReportRepository
	audits  repository.AuditLogRepository
	clock   Clock
}

func NewReportUsecase(reports repository.ReportRepository, audits repository.AuditLogRepository, clock Clock) *ReportUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	return &ReportUsecase{reports: reports, audits: audits, clock: clock}
}

type Dashboard struct {
	TotalUsers         int64                     `json:"total_users"`
	NewCustomers30d    int64                     `json:"new_customers_30d"`
	ActiveProducts     int64                     `json:"active_products"`
	LowStockProducts   int64                     `json:"low_stock_products"`
	TotalOrders        int64                     `json:"total_orders"`
	PendingOrders      int64                     `json:"pending_orders"`
	TotalRevenue       decimal.Decimal           `json:"total_revenue"`
	RevenueThisMonth   decimal.Decimal           `json:"revenue_this_month"`
	CompletedThisMonth int64                     `json:"completed_orders_this_month"`
	RecentOrders       []model.Order             `json:"recent_orders"`
	TopProducts        []repository.ProductSales `json:"top_products"`
}

func (u *ReportUsecase) Dashboard(ctx context.Context, actor Actor) (Dashboard, error) {
	if err := Authorize(actor, PermViewReports); err != nil {
		return Dashboard{}, err
	}

	now := u.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	pending := model.OrderStatusPending

	var d Dashboard
	var err error
	if d.TotalUsers, err = u.reports.CountUsers(ctx); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.NewCustomers30d, err = u.reports.CountCustomersSince(ctx, now.AddDate(0, 0, -30)); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.ActiveProducts, err = u.reports.CountActiveProducts(ctx); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.LowStockProducts, err = u.reports.CountLowStock(ctx, lowStockThreshold); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.TotalOrders, err = u.reports.CountOrders(ctx, nil); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.PendingOrders, err = u.reports.CountOrders(ctx, &pending); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.TotalRevenue, _, err = u.reports.SumCompletedRevenue(ctx, nil, nil); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.RevenueThisMonth, d.CompletedThisMonth, err = u.reports.SumCompletedRevenue(ctx, &monthStart, nil); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.RecentOrders, err = u.reports.RecentOrders(ctx, 10); err != nil {
		return Dashboard{}, dbError(err)
	}
	if d.TopProducts, err = u.reports.TopProducts(ctx, 5); err != nil {
		return Dashboard{}, dbError(err)
	}
	return d, nil
}

type SalesReportInput struct {
	From *time.Time
	To   *time.Time
}

type DailySales struct {
	Date    string          `json:"date"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	From              time.Time                  `json:"from"`
	To                time.Time                  `json:"to"`
	TotalRevenue      decimal.Decimal            `json:"total_revenue"`
	TotalOrders       int64                      `json:"total_orders"`
	AverageOrderValue decimal.Decimal            `json:"average_order_value"`
	Daily             []DailySales               `json:"daily"`
	Categories        []repository.CategorySales `json:"categories"`
}

// 期間指定が無ければ直近30日。toは日付の終わりまで含む
func (u *ReportUsecase) Sales(ctx context.Context, actor Actor, in SalesReportInput) (SalesReport, error) {
	if err := Authorize(actor, PermViewReports); err != nil {
		return SalesReport{}, err
	}

	now := u.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := today.AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -30)
	if in.To != nil {
		to = dayStart(*in.To).AddDate(0, 0, 1)
	}
	if in.From != nil {
		from = dayStart(*in.From)
	}
	if !from.Before(to) {
		return SalesReport{}, fieldError("from", "must be before to")
	}
	if to.Sub(from) > 366*24*time.Hour {
		return SalesReport{}, fieldError("from", "range must be at most one year")
	}

	orders, err := u.reports.ListCompletedOrders(ctx, from, to)
	if err != nil {
		return SalesReport{}, dbError(err)
	}
	cats, err := u.reports.CategorySales(ctx, from, to, 10)
	if err != nil {
		return SalesReport{}, dbError(err)
	}

	rep := SalesReport{
		From:         from,
		To:           to,
		TotalRevenue: decimal.Zero,
		Daily:        dailySeries(orders, from, to),
		Categories:   cats,
	}
	for _, o := range orders {
		rep.TotalRevenue = rep.TotalRevenue.Add(o.TotalAmount)
	}
	rep.TotalOrders = int64(len(orders))
	rep.AverageOrderValue = decimal.Zero
	if rep.TotalOrders > 0 {
		rep.AverageOrderValue = rep.TotalRevenue.Div(decimal.NewFromInt(rep.TotalOrders)).Round(2)
	}
	return rep, nil
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// 日ごとの集計。注文の無い日も0で埋める（DB方言に依存しないようGo側で）
func dailySeries(orders []model.Order, from, to time.Time) []DailySales {
	idx := map[string]int{}
	var out []DailySales
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		idx[key] = len(out)
		out = append(out, DailySales{Date: key, Revenue: decimal.Zero})
	}
	for _, o := range orders {
		i, ok := idx[o.OrderedAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		out[i].Orders++
		out[i].Revenue = out[i].Revenue.Add(o.TotalAmount)
	}
	return out
}

type AuditLogListInput struct {
	Page         int
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
}

const auditLogsPerPage = 20

func (u *ReportUsecase) AuditLogs(ctx context.Context, actor Actor, in AuditLogListInput) (Page[model.AuditLog], error) {
	if err := Authorize(actor, PermViewAuditLogs); err != nil {
		return Page[model.AuditLog]{}, err
	}
	page, _ := normalizePage(in.Page, auditLogsPerPage, auditLogsPerPage, auditLogsPerPage)

	f := repository.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
		CreatedFrom: in.From,
		CreatedTo:   in.To,
		Limit:       auditLogsPerPage,
		Offset:      (page - 1) * auditLogsPerPage,
	}
	if in.Action != "" {
		a := model.AuditAction(in.Action)
		f.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(in.ResourceType)
		f.ResourceType = &rt
	}

	logs, total, err := u.audits.List(ctx, f)
	if err != nil {
		return Page[model.AuditLog]{}, dbError(err)
	}
	return Page[model.AuditLog]{Items: logs, Total: total, Page: page, Limit: auditLogsPerPage}, nil
}
