package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/shopper-system/internal/model"
)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestWeekStart(t *testing.T) {
	loc := time.Local

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "mid-week",
			now:  time.Date(2026, 8, 26, 15, 30, 0, 0, loc), // среда
			want: time.Date(2026, 8, 23, 0, 0, 0, 0, loc),
		},
		{
			name: "sunday itself",
			now:  time.Date(2026, 8, 23, 9, 0, 0, 0, loc),
			want: time.Date(2026, 8, 23, 0, 0, 0, 0, loc),
		},
		{
			name: "saturday end of week",
			now:  time.Date(2026, 8, 29, 23, 59, 0, 0, loc),
			want: time.Date(2026, 8, 23, 0, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := weekStart(tt.now); !got.Equal(tt.want) {
				t.Fatalf("weekStart(%s) = %s, want %s", tt.now, got, tt.want)
			}
		})
	}
}

func TestQuarterStart(t *testing.T) {
	loc := time.Local

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2026, 2, 10, 0, 0, 0, 0, loc), time.Date(2026, 1, 1, 0, 0, 0, 0, loc)},
		{time.Date(2026, 8, 15, 0, 0, 0, 0, loc), time.Date(2026, 7, 1, 0, 0, 0, 0, loc)},
		{time.Date(2026, 12, 31, 0, 0, 0, 0, loc), time.Date(2026, 10, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		if got := quarterStart(tt.now); !got.Equal(tt.want) {
			t.Fatalf("quarterStart(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

func TestEarningsStats_WindowTotals(t *testing.T) {
	now := time.Now()
	longAgo := now.AddDate(-2, 0, 0)

	repo := &stubRepo{
		delivered: []model.Order{
			{
				ID:          uuid.New(),
				ShopName:    "Fresh Market",
				ServiceFee:  dec(300),
				DeliveryFee: dec(200),
				DeliveredAt: timePtr(now),
			},
			{
				ID:          uuid.New(),
				ShopName:    "Fresh Market",
				ServiceFee:  dec(100),
				DeliveryFee: dec(100),
				DeliveredAt: timePtr(longAgo),
			},
		},
	}
	svc := NewService(repo, nil)

	stats, err := svc.EarningsStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("EarningsStats error: %v", err)
	}

	if !stats.TotalEarnings.Equal(dec(700)) {
		t.Fatalf("total = %s, want 700", stats.TotalEarnings)
	}
	if !stats.WeekEarnings.Equal(dec(500)) {
		t.Fatalf("week = %s, want 500 (old order excluded)", stats.WeekEarnings)
	}
	if !stats.MonthEarnings.Equal(dec(500)) {
		t.Fatalf("month = %s, want 500", stats.MonthEarnings)
	}
	if !stats.QuarterEarnings.Equal(dec(500)) {
		t.Fatalf("quarter = %s, want 500", stats.QuarterEarnings)
	}
	if stats.DeliveredCount != 2 {
		t.Fatalf("delivered count = %d, want 2", stats.DeliveredCount)
	}
}

func TestEarningsStats_StoreBreakdownTopThree(t *testing.T) {
	now := time.Now()
	order := func(shop string, fee int64) model.Order {
		return model.Order{
			ID:          uuid.New(),
			ShopName:    shop,
			ServiceFee:  dec(fee),
			DeliveredAt: timePtr(now),
		}
	}

	repo := &stubRepo{
		delivered: []model.Order{
			order("Alpha", 5000),
			order("Beta", 3000),
			order("Gamma", 1000),
			order("Delta", 600),
			order("Epsilon", 400),
		},
	}
	svc := NewService(repo, nil)

	stats, err := svc.EarningsStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("EarningsStats error: %v", err)
	}

	breakdown := stats.StoreBreakdown
	if len(breakdown) != 4 {
		t.Fatalf("got %d entries, want top 3 plus Other", len(breakdown))
	}
	if breakdown[0].Name != "Alpha" || breakdown[1].Name != "Beta" || breakdown[2].Name != "Gamma" {
		t.Fatalf("top stores = %s, %s, %s", breakdown[0].Name, breakdown[1].Name, breakdown[2].Name)
	}
	if breakdown[3].Name != "Other" {
		t.Fatalf("last entry = %s, want Other", breakdown[3].Name)
	}
	if !breakdown[3].Earnings.Equal(dec(1000)) {
		t.Fatalf("Other earnings = %s, want 1000", breakdown[3].Earnings)
	}
	if math.Abs(breakdown[0].Percent-50.0) > 0.01 {
		t.Fatalf("Alpha percent = %f, want 50", breakdown[0].Percent)
	}

	sum := 0.0
	for _, st := range breakdown {
		sum += st.Percent
	}
	if math.Abs(sum-100.0) > 0.01 {
		t.Fatalf("percent sum = %f, want 100", sum)
	}
}

func TestEarningsStats_PerformanceScore(t *testing.T) {
	repo := &stubRepo{
		metrics: &model.PerformanceMetrics{
			CustomerRating: 4.5,
			OrderAccuracy:  90,
			AcceptanceRate: 80,
		},
	}
	svc := NewService(repo, nil)

	stats, err := svc.EarningsStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("EarningsStats error: %v", err)
	}

	// 0.30*90 + 0.25*95 + 0.20*90 + 0.25*80
	if math.Abs(stats.PerformanceScore-88.75) > 0.001 {
		t.Fatalf("score = %f, want 88.75", stats.PerformanceScore)
	}
	if stats.Metrics.OnTimeRate != placeholderOnTimeRate {
		t.Fatalf("on-time rate = %f, want placeholder %f", stats.Metrics.OnTimeRate, placeholderOnTimeRate)
	}
}

func TestPerformanceScore_Clamped(t *testing.T) {
	high := performanceScore(model.PerformanceMetrics{
		CustomerRating: 6,
		OnTimeRate:     100,
		OrderAccuracy:  100,
		AcceptanceRate: 100,
	})
	if high != 100 {
		t.Fatalf("score = %f, want clamped to 100", high)
	}

	low := performanceScore(model.PerformanceMetrics{
		OnTimeRate: -500,
	})
	if low != 0 {
		t.Fatalf("score = %f, want clamped to 0", low)
	}
}

func TestEarningsStats_UnknownStore(t *testing.T) {
	now := time.Now()
	repo := &stubRepo{
		delivered: []model.Order{
			{ID: uuid.New(), ServiceFee: dec(100), DeliveredAt: timePtr(now)},
		},
	}
	svc := NewService(repo, nil)

	stats, err := svc.EarningsStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("EarningsStats error: %v", err)
	}
	if len(stats.StoreBreakdown) != 1 || stats.StoreBreakdown[0].Name != "Unknown" {
		t.Fatalf("breakdown = %+v, want single Unknown entry", stats.StoreBreakdown)
	}

	total := decimal.Zero
	for _, st := range stats.StoreBreakdown {
		total = total.Add(st.Earnings)
	}
	if !total.Equal(stats.TotalEarnings) {
		t.Fatalf("breakdown sum %s != total %s", total, stats.TotalEarnings)
	}
}
