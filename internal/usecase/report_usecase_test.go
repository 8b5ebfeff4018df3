package usecase_test

import (
	"context"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Repository mocks
// =====================

type ReportRepoMock struct{ mock.Mock }

var _ repo.ReportRepository = (*ReportRepoMock)(nil)

func (m *ReportRepoMock) CountUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepoMock) CountCustomersSince(ctx context.Context, since time.Time) (int64, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepoMock) CountActiveProducts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepoMock) CountLowStock(ctx context.Context, below int64) (int64, error) {
	args := m.Called(ctx, below)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepoMock) CountOrders(ctx context.Context, status *model.OrderStatus) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ReportRepoMock) SumCompletedRevenue(ctx context.Context, from, to *time.Time) (decimal.Decimal, int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Get(1).(int64), args.Error(2)
}

func (m *ReportRepoMock) ListCompletedOrders(ctx context.Context, from, to time.Time) ([]model.Order, error) {
	args := m.Called(ctx, from, to)
	o, _ := args.Get(0).([]model.Order)
	return o, args.Error(1)
}

func (m *ReportRepoMock) RecentOrders(ctx context.Context, limit int) ([]model.Order, error) {
	args := m.Called(ctx, limit)
	o, _ := args.Get(0).([]model.Order)
	return o, args.Error(1)
}

func (m *ReportRepoMock) TopProducts(ctx context.Context, limit int) ([]repo.ProductSales, error) {
	args := m.Called(ctx, limit)
	o, _ := args.Get(0).([]repo.ProductSales)
	return o, args.Error(1)
}

func (m *ReportRepoMock) CategorySales(ctx context.Context, from, to time.Time, limit int) ([]repo.CategorySales, error) {
	args := m.Called(ctx, from, to, limit)
	o, _ := args.Get(0).([]repo.CategorySales)
	return o, args.Error(1)
}

type AuditLogRepoMock struct{ mock.Mock }

var _ repo.AuditLogRepository = (*AuditLogRepoMock)(nil)

func (m *AuditLogRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *AuditLogRepoMock) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	args := m.Called(ctx, f)
	o, _ := args.Get(0).([]model.AuditLog)
	return o, args.Get(1).(int64), args.Error(2)
}

var reportAdmin = usecase.Actor{UserID: 1, Role: model.RoleAdmin}

func TestSalesReport_FillsDailySeries(t *testing.T) {
	reports := new(ReportRepoMock)
	clock := &testutil.FixedClock{T: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)}
	uc := usecase.NewReportUsecase(reports, new(AuditLogRepoMock), clock)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	wantFrom := from
	wantTo := to.AddDate(0, 0, 1)

	reports.On("ListCompletedOrders", mock.Anything, wantFrom, wantTo).Return([]model.Order{
		{ID: 1, TotalAmount: decimal.RequireFromString("100.00"), OrderedAt: from.Add(2 * time.Hour)},
		{ID: 2, TotalAmount: decimal.RequireFromString("50.00"), OrderedAt: from.Add(5 * time.Hour)},
		{ID: 3, TotalAmount: decimal.RequireFromString("25.00"), OrderedAt: to.Add(23 * time.Hour)},
	}, nil)
	reports.On("CategorySales", mock.Anything, wantFrom, wantTo, 10).Return([]repo.CategorySales{
		{CategoryID: 1, CategoryName: "Grocery", Quantity: 4, Revenue: decimal.RequireFromString("175.00")},
	}, nil)

	rep, err := uc.Sales(context.Background(), reportAdmin, usecase.SalesReportInput{From: &from, To: &to})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("175").Equal(rep.TotalRevenue))
	assert.Equal(t, int64(3), rep.TotalOrders)
	assert.True(t, decimal.RequireFromString("58.33").Equal(rep.AverageOrderValue))
	require.Len(t, rep.Daily, 3)
	assert.Equal(t, "2025-03-01", rep.Daily[0].Date)
	assert.Equal(t, int64(2), rep.Daily[0].Orders)
	assert.Equal(t, int64(0), rep.Daily[1].Orders)
	assert.True(t, decimal.Zero.Equal(rep.Daily[1].Revenue))
	assert.Equal(t, int64(1), rep.Daily[2].Orders)
	require.Len(t, rep.Categories, 1)

	reports.AssertExpectations(t)
}

func TestSalesReport_InvalidRange(t *testing.T) {
	uc := usecase.NewReportUsecase(new(ReportRepoMock), new(AuditLogRepoMock), nil)
	from := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := uc.Sales(context.Background(), reportAdmin, usecase.SalesReportInput{From: &from, To: &to})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	far := from.AddDate(-2, 0, 0)
	_, err = uc.Sales(context.Background(), reportAdmin, usecase.SalesReportInput{From: &far, To: &to})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestDashboard(t *testing.T) {
	reports := new(ReportRepoMock)
	clock := &testutil.FixedClock{T: time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)}
	uc := usecase.NewReportUsecase(reports, new(AuditLogRepoMock), clock)

	monthStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	reports.On("CountUsers", mock.Anything).Return(int64(12), nil)
	reports.On("CountCustomersSince", mock.Anything, clock.T.AddDate(0, 0, -30)).Return(int64(4), nil)
	reports.On("CountActiveProducts", mock.Anything).Return(int64(30), nil)
	reports.On("CountLowStock", mock.Anything, int64(10)).Return(int64(2), nil)
	reports.On("CountOrders", mock.Anything, (*model.OrderStatus)(nil)).Return(int64(40), nil)
	reports.On("CountOrders", mock.Anything, mock.MatchedBy(func(s *model.OrderStatus) bool {
		return s != nil && *s == model.OrderStatusPending
	})).Return(int64(3), nil)
	reports.On("SumCompletedRevenue", mock.Anything, (*time.Time)(nil), (*time.Time)(nil)).
		Return(decimal.RequireFromString("9000"), int64(35), nil)
	reports.On("SumCompletedRevenue", mock.Anything, &monthStart, (*time.Time)(nil)).
		Return(decimal.RequireFromString("1200"), int64(6), nil)
	reports.On("RecentOrders", mock.Anything, 10).Return([]model.Order{{ID: 40}}, nil)
	reports.On("TopProducts", mock.Anything, 5).Return([]repo.ProductSales{{ProductID: 1, Quantity: 9}}, nil)

	d, err := uc.Dashboard(context.Background(), reportAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(12), d.TotalUsers)
	assert.Equal(t, int64(3), d.PendingOrders)
	assert.Equal(t, int64(40), d.TotalOrders)
	assert.True(t, decimal.RequireFromString("1200").Equal(d.RevenueThisMonth))
	assert.Equal(t, int64(6), d.CompletedThisMonth)
	assert.Len(t, d.RecentOrders, 1)

	reports.AssertExpectations(t)
}

func TestReports_RequireAdmin(t *testing.T) {
	uc := usecase.NewReportUsecase(new(ReportRepoMock), new(AuditLogRepoMock), nil)
	customer := usecase.Actor{UserID: 2, Role: model.RoleCustomer}

	_, err := uc.Dashboard(context.Background(), customer)
	assert.ErrorIs(t, err, usecase.ErrForbidden)
	_, err = uc.AuditLogs(context.Background(), customer, usecase.AuditLogListInput{})
	assert.ErrorIs(t, err, usecase.ErrForbidden)
}

func TestAuditLogs_BuildsFilter(t *testing.T) {
	audits := new(AuditLogRepoMock)
	uc := usecase.NewReportUsecase(new(ReportRepoMock), audits, nil)

	actorID := int64(7)
	audits.On("List", mock.Anything, mock.MatchedBy(func(f repo.AuditLogFilter) bool {
		return f.ActorUserID != nil && *f.ActorUserID == 7 &&
			f.Action != nil && *f.Action == model.AuditActionCancelOrder &&
			f.Limit == 20 && f.Offset == 20
	})).Return([]model.AuditLog{{ID: 99}}, int64(21), nil)

	page, err := uc.AuditLogs(context.Background(), reportAdmin, usecase.AuditLogListInput{
		Page:        2,
		ActorUserID: &actorID,
		Action:      string(model.AuditActionCancelOrder),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), page.Total)
	assert.Equal(t, 2, page.Page)
	audits.AssertExpectations(t)
}
