// Package service реализует бизнес-логику сервиса расчётов шопперов.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/shopper-system/internal/model"
	"github.com/mmeshcher/shopper-system/internal/repository"
)

// ErrOrderNotAssigned возвращается, если заказ не принадлежит текущему шопперу.
var (
	ErrOrderNotAssigned = errors.New("order is not assigned to this shopper")
	// ErrInsufficientReserved возвращается, если резерва кошелька не хватает на расчёт.
	ErrInsufficientReserved = errors.New("insufficient reserved balance")
	// ErrPINMismatch возвращается при неверном коде подтверждения доставки.
	ErrPINMismatch = errors.New("delivery pin mismatch")
	// ErrUnknownOrderType возвращается для неизвестного типа заказа.
	ErrUnknownOrderType = errors.New("unknown order type")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	ActiveOrders(ctx context.Context, shopperID uuid.UUID) ([]model.Order, error)
	ActiveReelOrders(ctx context.Context, shopperID uuid.UUID) ([]model.ReelOrder, error)
	ActiveRestaurantOrders(ctx context.Context, shopperID uuid.UUID) ([]model.RestaurantOrder, error)
	OrderByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	BatchOrders(ctx context.Context, combinedOrderID uuid.UUID) ([]model.Order, error)
	ReelOrderByID(ctx context.Context, orderID uuid.UUID) (*model.ReelOrder, error)
	RestaurantOrderByID(ctx context.Context, orderID uuid.UUID) (*model.RestaurantOrder, error)
	DeliveredOrders(ctx context.Context, shopperID uuid.UUID) ([]model.Order, error)
	WalletByShopper(ctx context.Context, shopperID uuid.UUID) (*model.Wallet, error)
	RefundExists(ctx context.Context, orderID uuid.UUID) (bool, error)
	SettleBatch(ctx context.Context, in repository.SettleBatchInput) error
	MarkOrdersDelivered(ctx context.Context, orderIDs []uuid.UUID) error
	MarkReelOrderDelivered(ctx context.Context, orderID uuid.UUID) error
	MarkRestaurantOrderDelivered(ctx context.Context, orderID uuid.UUID) error
	CreateInvoices(ctx context.Context, inputs []repository.InvoiceInput) error
	InvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error)
	DeliveredOrdersWithoutInvoice(ctx context.Context, limit int) ([]model.Order, error)
	WalletTransactions(ctx context.Context, shopperID uuid.UUID) ([]model.WalletTransaction, error)
	ShopperMetrics(ctx context.Context, shopperID uuid.UUID) (*model.PerformanceMetrics, error)
}

// Service содержит бизнес-логику сервиса расчётов шопперов.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// GetWallet возвращает кошелёк шоппера.
func (s *Service) GetWallet(ctx context.Context, shopperID uuid.UUID) (*model.Wallet, error) {
	return s.repo.WalletByShopper(ctx, shopperID)
}

// GetWalletTransactions возвращает журнал операций кошелька шоппера.
func (s *Service) GetWalletTransactions(ctx context.Context, shopperID uuid.UUID) ([]model.WalletTransaction, error) {
	return s.repo.WalletTransactions(ctx, shopperID)
}

// GetInvoice возвращает счёт по заказу.
func (s *Service) GetInvoice(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error) {
	return s.repo.InvoiceByOrder(ctx, orderID)
}

// StartInvoiceBackfill запускает фоновый процесс дозаполнения счетов
// по доставленным заказам. Закрывает окно между доставкой и созданием счёта
// при падении процесса.
func (s *Service) StartInvoiceBackfill(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processInvoiceBackfill(ctx)
			}
		}
	}()
}

func (s *Service) processInvoiceBackfill(ctx context.Context) {
	orders, err := s.repo.DeliveredOrdersWithoutInvoice(ctx, 100)
	if err != nil {
		s.logger.Warn("invoice backfill: select orders", zap.Error(err))
		return
	}
	if len(orders) == 0 {
		return
	}

	inputs := make([]repository.InvoiceInput, 0, len(orders))
	for _, o := range orders {
		in, err := buildInvoiceInput(o)
		if err != nil {
			s.logger.Warn("invoice backfill: build invoice", zap.String("orderID", o.ID.String()), zap.Error(err))
			continue
		}
		inputs = append(inputs, in)
	}

	if err := s.repo.CreateInvoices(ctx, inputs); err != nil {
		s.logger.Warn("invoice backfill: insert invoices", zap.Error(err))
		return
	}

	s.logger.Info("invoice backfill complete", zap.Int("count", len(inputs)))
}

type invoiceLineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Found    bool   `json:"found"`
}

// buildInvoiceInput формирует снимок счёта по заказу.
// Промежуточная сумма считается только по собранным позициям.
func buildInvoiceInput(o model.Order) (repository.InvoiceInput, error) {
	subtotal := decimal.Zero
	lines := make([]invoiceLineItem, 0, len(o.Items))
	for _, it := range o.Items {
		if it.Found {
			subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		lines = append(lines, invoiceLineItem{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price.String(),
			Found:    it.Found,
		})
	}

	items, err := json.Marshal(lines)
	if err != nil {
		return repository.InvoiceInput{}, fmt.Errorf("marshal line items: %w", err)
	}

	return repository.InvoiceInput{
		OrderID:       o.ID,
		InvoiceNumber: invoiceNumber(o),
		Subtotal:      subtotal,
		Tax:           decimal.Zero,
		ServiceFee:    o.ServiceFee,
		DeliveryFee:   o.DeliveryFee,
		Discount:      decimal.Zero,
		Total:         subtotal.Add(o.ServiceFee).Add(o.DeliveryFee),
		Items:         items,
	}, nil
}

func invoiceNumber(o model.Order) string {
	short := strings.ToUpper(strings.ReplaceAll(o.ID.String(), "-", ""))[:8]
	day := o.CreatedAt
	if o.DeliveredAt != nil {
		day = *o.DeliveredAt
	}
	return fmt.Sprintf("INV-%s-%s", day.Format("20060102"), short)
}
