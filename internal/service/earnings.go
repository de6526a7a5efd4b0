package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/shopper-system/internal/model"
)

// Доля доставок вовремя внешней системой не хранится, значение фиксировано
// до появления фактических сроков доставки в схеме.
const placeholderOnTimeRate = 95.0

const topStoreCount = 3

// Веса взвешенной оценки эффективности. Рейтинг покупателей (0–5)
// приводится к шкале 0–100 умножением на 20.
const (
	weightRating     = 0.30
	weightOnTime     = 0.25
	weightAccuracy   = 0.20
	weightAcceptance = 0.25
)

// EarningsStats агрегирует доставленные заказы шоппера: суммарный заработок,
// разбивку по магазинам и заработок в текущих календарных окнах.
func (s *Service) EarningsStats(ctx context.Context, shopperID uuid.UUID) (*model.EarningsStats, error) {
	var (
		delivered []model.Order
		metrics   *model.PerformanceMetrics
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		delivered, err = s.repo.DeliveredOrders(gctx, shopperID)
		return err
	})
	g.Go(func() error {
		var err error
		metrics, err = s.repo.ShopperMetrics(gctx, shopperID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = &model.PerformanceMetrics{}
	}

	now := time.Now()
	week := weekStart(now)
	month := monthStart(now)
	quarter := quarterStart(now)

	stats := &model.EarningsStats{
		TotalEarnings:   decimal.Zero,
		WeekEarnings:    decimal.Zero,
		MonthEarnings:   decimal.Zero,
		QuarterEarnings: decimal.Zero,
		DeliveredCount:  len(delivered),
	}

	perStore := make(map[string]decimal.Decimal)
	for _, o := range delivered {
		earnings := o.Earnings()
		stats.TotalEarnings = stats.TotalEarnings.Add(earnings)

		at := orderTime(o)
		if !at.Before(week) {
			stats.WeekEarnings = stats.WeekEarnings.Add(earnings)
		}
		if !at.Before(month) {
			stats.MonthEarnings = stats.MonthEarnings.Add(earnings)
		}
		if !at.Before(quarter) {
			stats.QuarterEarnings = stats.QuarterEarnings.Add(earnings)
		}

		name := o.ShopName
		if name == "" {
			name = "Unknown"
		}
		perStore[name] = perStore[name].Add(earnings)
	}

	stats.StoreBreakdown = storeBreakdown(perStore, stats.TotalEarnings)

	metrics.OnTimeRate = placeholderOnTimeRate
	stats.Metrics = *metrics
	stats.PerformanceScore = performanceScore(*metrics)

	return stats, nil
}

// storeBreakdown возвращает три магазина с наибольшим заработком и корзину
// Other с остатком. Проценты считаются от общего заработка.
func storeBreakdown(perStore map[string]decimal.Decimal, total decimal.Decimal) []model.StoreEarnings {
	if len(perStore) == 0 {
		return nil
	}

	stores := make([]model.StoreEarnings, 0, len(perStore))
	for name, earnings := range perStore {
		stores = append(stores, model.StoreEarnings{Name: name, Earnings: earnings})
	}
	sort.Slice(stores, func(i, j int) bool {
		if !stores[i].Earnings.Equal(stores[j].Earnings) {
			return stores[i].Earnings.GreaterThan(stores[j].Earnings)
		}
		return stores[i].Name < stores[j].Name
	})

	if len(stores) > topStoreCount {
		other := model.StoreEarnings{Name: "Other", Earnings: decimal.Zero}
		for _, st := range stores[topStoreCount:] {
			other.Earnings = other.Earnings.Add(st.Earnings)
		}
		stores = append(stores[:topStoreCount], other)
	}

	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range stores {
			stores[i].Percent = stores[i].Earnings.Mul(hundred).Div(total).InexactFloat64()
		}
	}

	return stores
}

func performanceScore(m model.PerformanceMetrics) float64 {
	score := weightRating*(m.CustomerRating*20) +
		weightOnTime*m.OnTimeRate +
		weightAccuracy*m.OrderAccuracy +
		weightAcceptance*m.AcceptanceRate

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func orderTime(o model.Order) time.Time {
	if o.DeliveredAt != nil {
		return *o.DeliveredAt
	}
	return o.CreatedAt
}

// weekStart возвращает начало текущей недели: воскресенье 00:00:00 местного времени.
func weekStart(now time.Time) time.Time {
	d := now.AddDate(0, 0, -int(now.Weekday()))
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func quarterStart(now time.Time) time.Time {
	month := time.Month((int(now.Month())-1)/3*3 + 1)
	return time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
}
