package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/shopper-system/internal/model"
)

// ActiveBatches возвращает все недоставленные заказы шоппера единым плоским
// списком сводных записей. Обычные заказы с общим combined_order_id
// сворачиваются в одну запись группы; частичный результат не допускается.
func (s *Service) ActiveBatches(ctx context.Context, shopperID uuid.UUID) ([]model.OrderSummary, error) {
	var (
		regular     []model.Order
		reels       []model.ReelOrder
		restaurants []model.RestaurantOrder
	)

	// Три коллекции независимы, запрашиваются параллельно.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regular, err = s.repo.ActiveOrders(gctx, shopperID)
		if err != nil {
			return fmt.Errorf("fetch orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		reels, err = s.repo.ActiveReelOrders(gctx, shopperID)
		if err != nil {
			return fmt.Errorf("fetch reel orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		restaurants, err = s.repo.ActiveRestaurantOrders(gctx, shopperID)
		if err != nil {
			return fmt.Errorf("fetch restaurant orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]model.OrderSummary, 0, len(regular)+len(reels)+len(restaurants))

	groups := make(map[uuid.UUID][]model.Order)
	var groupIDs []uuid.UUID
	for _, o := range regular {
		if o.CombinedOrderID == nil {
			summaries = append(summaries, regularSummary(o))
			continue
		}
		id := *o.CombinedOrderID
		if _, ok := groups[id]; !ok {
			groupIDs = append(groupIDs, id)
		}
		groups[id] = append(groups[id], o)
	}
	for _, id := range groupIDs {
		summaries = append(summaries, combinedSummary(id, groups[id]))
	}

	for _, o := range reels {
		summaries = append(summaries, reelSummary(o))
	}
	for _, o := range restaurants {
		summaries = append(summaries, restaurantSummary(o))
	}

	return summaries, nil
}

func regularSummary(o model.Order) model.OrderSummary {
	return model.OrderSummary{
		OrderType:        model.OrderTypeRegular,
		OrderID:          o.ID,
		Status:           o.Status,
		Earnings:         o.Earnings(),
		Units:            o.UnitCount(),
		OrderCount:       1,
		ShopNames:        []string{o.ShopName},
		CustomerNames:    []string{o.CustomerName},
		Addresses:        []string{o.CustomerAddress},
		CombinedCustomer: true,
		CreatedAt:        o.CreatedAt,
	}
}

// combinedSummary сворачивает группу заказов одной поездки в одну запись.
// Шаблон записи — первый заказ группы, суммы и списки агрегируются по всем.
func combinedSummary(combinedID uuid.UUID, orders []model.Order) model.OrderSummary {
	first := orders[0]
	id := combinedID

	sum := model.OrderSummary{
		OrderType:        model.OrderTypeRegular,
		OrderID:          first.ID,
		CombinedOrderID:  &id,
		Status:           first.Status,
		Earnings:         decimal.Zero,
		OrderCount:       len(orders),
		CombinedCustomer: true,
		CreatedAt:        first.CreatedAt,
	}

	for _, o := range orders {
		sum.Earnings = sum.Earnings.Add(o.Earnings())
		sum.Units += o.UnitCount()
		sum.ShopNames = appendUnique(sum.ShopNames, o.ShopName)
		sum.CustomerNames = appendUnique(sum.CustomerNames, o.CustomerName)
		sum.Addresses = appendUnique(sum.Addresses, o.CustomerAddress)
		if o.CustomerID != first.CustomerID {
			sum.CombinedCustomer = false
		}
	}

	return sum
}

func reelSummary(o model.ReelOrder) model.OrderSummary {
	return model.OrderSummary{
		OrderType:        model.OrderTypeReel,
		OrderID:          o.ID,
		Status:           o.Status,
		Earnings:         o.ServiceFee.Add(o.DeliveryFee),
		Units:            o.Quantity,
		OrderCount:       1,
		ShopNames:        []string{o.Title},
		CustomerNames:    []string{o.CustomerName},
		Addresses:        []string{o.CustomerAddress},
		CombinedCustomer: true,
		SkipShopping:     o.SkipShopping(),
		CreatedAt:        o.CreatedAt,
	}
}

func restaurantSummary(o model.RestaurantOrder) model.OrderSummary {
	return model.OrderSummary{
		OrderType:        model.OrderTypeRestaurant,
		OrderID:          o.ID,
		Status:           o.Status,
		Earnings:         o.ServiceFee.Add(o.DeliveryFee),
		Units:            o.ItemCount,
		OrderCount:       1,
		ShopNames:        []string{o.RestaurantName},
		CustomerNames:    []string{o.CustomerName},
		Addresses:        []string{o.CustomerAddress},
		CombinedCustomer: true,
		SkipShopping:     true,
		CreatedAt:        o.CreatedAt,
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
