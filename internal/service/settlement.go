package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/shopper-system/internal/gateway"
	"github.com/mmeshcher/shopper-system/internal/model"
	"github.com/mmeshcher/shopper-system/internal/repository"
)

// refundGeneratedBy помечает возвраты, созданные автоматически при расчёте.
const refundGeneratedBy = "settlement"

// SettleInput — входные данные расчёта по заказу.
// FoundAmount — подтверждённая шоппером сумма собранных позиций; для
// объединённой группы она покрывает всю группу целиком.
type SettleInput struct {
	OrderID     uuid.UUID
	OrderType   model.OrderType
	FoundAmount decimal.Decimal
	MomoRef     string
	MomoCode    string
}

// SettleResult — итог расчёта.
type SettleResult struct {
	OrderIDs        []uuid.UUID
	OriginalAmount  decimal.Decimal
	FoundAmount     decimal.Decimal
	RefundAmount    decimal.Decimal
	RefundCreated   bool
	ReservedBalance decimal.Decimal
}

// SettlePayment выполняет расчёт по заказу: проверяет резерв кошелька,
// при недоборе создаёт возврат покупателю, списывает исходную сумму заказа
// из резерва и записывает проводки журнала. Возврат идемпотентен: повторный
// расчёт по тому же заказу второй строки возврата не создаёт.
func (s *Service) SettlePayment(ctx context.Context, shopperID uuid.UUID, in SettleInput) (*SettleResult, error) {
	switch in.OrderType {
	case model.OrderTypeRegular:
		return s.settleRegular(ctx, shopperID, in)
	case model.OrderTypeReel:
		return s.settleReel(ctx, shopperID, in)
	case model.OrderTypeRestaurant:
		return s.settleRestaurant(ctx, shopperID, in)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrderType, in.OrderType)
	}
}

func (s *Service) settleRegular(ctx context.Context, shopperID uuid.UUID, in SettleInput) (*SettleResult, error) {
	order, err := s.repo.OrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}

	// Заказ из объединённой группы рассчитывается всей группой сразу.
	batch := []model.Order{*order}
	if order.CombinedOrderID != nil {
		siblings, err := s.repo.BatchOrders(ctx, *order.CombinedOrderID)
		if err != nil {
			return nil, err
		}
		if len(siblings) > 0 {
			batch = siblings
		}
	}

	originalAmount := decimal.Zero
	orderIDs := make([]uuid.UUID, 0, len(batch))
	for _, o := range batch {
		originalAmount = originalAmount.Add(o.Total)
		orderIDs = append(orderIDs, o.ID)
	}

	transactions := func(walletID uuid.UUID) []repository.TransactionInput {
		txs := make([]repository.TransactionInput, 0, len(batch))
		for _, o := range batch {
			txs = append(txs, repository.TransactionInput{
				WalletID:    walletID,
				OrderID:     o.ID,
				Amount:      o.Total,
				Type:        "payment",
				Status:      "completed",
				Description: paymentDescription(o.ShopName, in),
			})
		}
		return txs
	}

	return s.completeSettlement(ctx, shopperID, settlement{
		primaryOrderID: order.ID,
		orderIDs:       orderIDs,
		originalAmount: originalAmount,
		foundAmount:    in.FoundAmount,
		refundReason:   missingItemsReason(batch),
		transactions:   transactions,
	})
}

func (s *Service) settleReel(ctx context.Context, shopperID uuid.UUID, in SettleInput) (*SettleResult, error) {
	order, err := s.repo.ReelOrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}

	// Журнал кошелька ссылается только на обычные и ресторанные заказы,
	// для заказов по роликам проводка не записывается.
	return s.completeSettlement(ctx, shopperID, settlement{
		primaryOrderID: order.ID,
		orderIDs:       []uuid.UUID{order.ID},
		originalAmount: order.Total,
		foundAmount:    in.FoundAmount,
		refundReason:   fmt.Sprintf("Reel order %q under-fulfilled", order.Title),
		transactions:   nil,
	})
}

func (s *Service) settleRestaurant(ctx context.Context, shopperID uuid.UUID, in SettleInput) (*SettleResult, error) {
	order, err := s.repo.RestaurantOrderByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ShopperID == nil || *order.ShopperID != shopperID {
		return nil, ErrOrderNotAssigned
	}

	orderID := order.ID
	name := order.RestaurantName
	transactions := func(walletID uuid.UUID) []repository.TransactionInput {
		return []repository.TransactionInput{{
			WalletID:    walletID,
			OrderID:     orderID,
			Amount:      order.Total,
			Type:        "payment",
			Status:      "completed",
			Description: paymentDescription(name, in),
		}}
	}

	return s.completeSettlement(ctx, shopperID, settlement{
		primaryOrderID: order.ID,
		orderIDs:       []uuid.UUID{order.ID},
		originalAmount: order.Total,
		foundAmount:    in.FoundAmount,
		refundReason:   fmt.Sprintf("Restaurant order from %s under-fulfilled", name),
		transactions:   transactions,
	})
}

type settlement struct {
	primaryOrderID uuid.UUID
	orderIDs       []uuid.UUID
	originalAmount decimal.Decimal
	foundAmount    decimal.Decimal
	refundReason   string
	transactions   func(walletID uuid.UUID) []repository.TransactionInput
}

func (s *Service) completeSettlement(ctx context.Context, shopperID uuid.UUID, st settlement) (*SettleResult, error) {
	wallet, err := s.repo.WalletByShopper(ctx, shopperID)
	if err != nil {
		return nil, err
	}

	// Проверка резерва выполняется до любых записей.
	if wallet.ReservedBalance.LessThan(st.foundAmount) {
		return nil, fmt.Errorf("%w: reserved %s, required %s",
			ErrInsufficientReserved, wallet.ReservedBalance.String(), st.foundAmount.String())
	}

	refundAmount := st.originalAmount.Sub(st.foundAmount)
	if refundAmount.IsNegative() {
		refundAmount = decimal.Zero
	}

	var refund *repository.RefundInput
	if refundAmount.IsPositive() {
		exists, err := s.repo.RefundExists(ctx, st.primaryOrderID)
		if err != nil {
			return nil, err
		}
		if !exists {
			refund = &repository.RefundInput{
				ID:          uuid.New(),
				OrderID:     st.primaryOrderID,
				Amount:      refundAmount,
				Reason:      st.refundReason,
				GeneratedBy: refundGeneratedBy,
			}
		}
	}

	// Из резерва списывается исходная сумма заказа, а не подтверждённая:
	// разница уже оформлена возвратом покупателю.
	newReserved := wallet.ReservedBalance.Sub(st.originalAmount)
	if newReserved.IsNegative() {
		newReserved = decimal.Zero
	}

	var transactions []repository.TransactionInput
	if st.transactions != nil {
		transactions = st.transactions(wallet.ID)
	}
	// Идентификаторы строк фиксируются до повторов: если шлюз применил мутацию,
	// а ответ потерялся, повторная отправка конфликтует по тем же ключам
	// и дубликатов не создаёт.
	for i := range transactions {
		transactions[i].ID = uuid.New()
	}

	settleInput := repository.SettleBatchInput{
		WalletID:           wallet.ID,
		NewReservedBalance: newReserved,
		Refund:             refund,
		Transactions:       transactions,
	}

	// Мутация атомарна на стороне шлюза, повтор при временной недоступности безопасен.
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.repo.SettleBatch(ctx, settleInput); err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment settled",
		zap.String("shopperID", shopperID.String()),
		zap.String("orderID", st.primaryOrderID.String()),
		zap.String("original", st.originalAmount.String()),
		zap.String("found", st.foundAmount.String()),
		zap.String("refund", refundAmount.String()),
	)

	return &SettleResult{
		OrderIDs:        st.orderIDs,
		OriginalAmount:  st.originalAmount,
		FoundAmount:     st.foundAmount,
		RefundAmount:    refundAmount,
		RefundCreated:   refund != nil,
		ReservedBalance: newReserved,
	}, nil
}

func paymentDescription(shopName string, in SettleInput) string {
	desc := fmt.Sprintf("Payment for order at %s", shopName)
	if in.MomoRef != "" {
		desc += fmt.Sprintf(", MoMo ref %s", in.MomoRef)
	}
	if in.MomoCode != "" {
		desc += fmt.Sprintf(" (code %s)", in.MomoCode)
	}
	return desc
}

// missingItemsReason перечисляет несобранные позиции по каждому магазину группы.
func missingItemsReason(batch []model.Order) string {
	var parts []string
	for _, o := range batch {
		var missing []string
		for _, it := range o.Items {
			if !it.Found {
				missing = append(missing, fmt.Sprintf("%s x%d", it.Name, it.Quantity))
			}
		}
		if len(missing) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", o.ShopName, strings.Join(missing, ", ")))
		}
	}
	if len(parts) == 0 {
		return "Items not found during shopping"
	}
	return "Missing items. " + strings.Join(parts, "; ")
}
