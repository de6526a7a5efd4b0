package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/shopper-system/internal/model"
	"github.com/mmeshcher/shopper-system/internal/repository"
)

// DeliveryResult — итог подтверждения доставки.
type DeliveryResult struct {
	Verified bool
	OrderIDs []uuid.UUID
}

// ConfirmDelivery сверяет код подтверждения и переводит заказ в delivered.
// Внутри объединённой группы код общий только для заказов одного покупателя:
// вместе с подтверждённым заказом доставляются его соседи по группе с тем же
// покупателем, заказы других покупателей подтверждаются отдельно.
func (s *Service) ConfirmDelivery(ctx context.Context, shopperID, orderID uuid.UUID, orderType model.OrderType, pin string) (*DeliveryResult, error) {
	switch orderType {
	case model.OrderTypeRegular:
		return s.deliverRegular(ctx, shopperID, orderID, pin)
	case model.OrderTypeReel:
		return s.deliverReel(ctx, shopperID, orderID, pin)
	case model.OrderTypeRestaurant:
		return s.deliverRestaurant(ctx, shopperID, orderID, pin)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrderType, orderType)
	}
}

func (s *Service) deliverRegular(ctx context.Context, shopperID, orderID uuid.UUID, pin string) (*DeliveryResult, error) {
	order, err := s.repo.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}
	if order.PIN != pin {
		return nil, ErrPINMismatch
	}

	toDeliver := []model.Order{*order}
	if order.CombinedOrderID != nil {
		siblings, err := s.repo.BatchOrders(ctx, *order.CombinedOrderID)
		if err != nil {
			return nil, err
		}
		toDeliver = toDeliver[:0]
		for _, o := range siblings {
			if o.CustomerID == order.CustomerID && o.Status != model.OrderStatusDelivered {
				toDeliver = append(toDeliver, o)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(toDeliver))
	for _, o := range toDeliver {
		ids = append(ids, o.ID)
	}

	if err := s.repo.MarkOrdersDelivered(ctx, ids); err != nil {
		return nil, err
	}

	// Счёт формируется сразу после доставки; при ошибке его допишет
	// фоновое дозаполнение, доставку это не откатывает.
	inputs := make([]repository.InvoiceInput, 0, len(toDeliver))
	for _, o := range toDeliver {
		in, err := buildInvoiceInput(o)
		if err != nil {
			s.logger.Warn("build invoice", zap.String("orderID", o.ID.String()), zap.Error(err))
			continue
		}
		inputs = append(inputs, in)
	}
	if err := s.repo.CreateInvoices(ctx, inputs); err != nil {
		s.logger.Warn("create invoices after delivery", zap.Error(err))
	}

	return &DeliveryResult{Verified: true, OrderIDs: ids}, nil
}

func (s *Service) deliverReel(ctx context.Context, shopperID, orderID uuid.UUID, pin string) (*DeliveryResult, error) {
	order, err := s.repo.ReelOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}
	if order.PIN != pin {
		return nil, ErrPINMismatch
	}

	if err := s.repo.MarkReelOrderDelivered(ctx, order.ID); err != nil {
		return nil, err
	}

	return &DeliveryResult{Verified: true, OrderIDs: []uuid.UUID{order.ID}}, nil
}

func (s *Service) deliverRestaurant(ctx context.Context, shopperID, orderID uuid.UUID, pin string) (*DeliveryResult, error) {
	order, err := s.repo.RestaurantOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}
	if order.PIN != pin {
		return nil, ErrPINMismatch
	}

	if err := s.repo.MarkRestaurantOrderDelivered(ctx, order.ID); err != nil {
		return nil, err
	}

	return &DeliveryResult{Verified: true, OrderIDs: []uuid.UUID{order.ID}}, nil
}
