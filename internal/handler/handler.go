// Package handler содержит HTTP-обработчики API сервиса расчётов шопперов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/shopper-system/internal/middleware"
	"github.com/mmeshcher/shopper-system/internal/model"
	"github.com/mmeshcher/shopper-system/internal/repository"
	"github.com/mmeshcher/shopper-system/internal/service"
	"github.com/mmeshcher/shopper-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ActiveBatches(ctx context.Context, shopperID uuid.UUID) ([]model.OrderSummary, error)
	SettlePayment(ctx context.Context, shopperID uuid.UUID, in service.SettleInput) (*service.SettleResult, error)
	EarningsStats(ctx context.Context, shopperID uuid.UUID) (*model.EarningsStats, error)
	ConfirmDelivery(ctx context.Context, shopperID, orderID uuid.UUID, orderType model.OrderType, pin string) (*service.DeliveryResult, error)
	GetInvoice(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error)
	GetWallet(ctx context.Context, shopperID uuid.UUID) (*model.Wallet, error)
	GetWalletTransactions(ctx context.Context, shopperID uuid.UUID) ([]model.WalletTransaction, error)
}

// Handler реализует HTTP-обработчики API сервиса расчётов шопперов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type batchResponse struct {
	OrderType        string   `json:"orderType"`
	OrderID          string   `json:"orderId"`
	CombinedOrderID  *string  `json:"combinedOrderId,omitempty"`
	Status           string   `json:"status"`
	Earnings         string   `json:"earnings"`
	Units            int      `json:"units"`
	OrderCount       int      `json:"orderCount"`
	ShopNames        []string `json:"shopNames"`
	CustomerNames    []string `json:"customerNames"`
	Addresses        []string `json:"addresses"`
	CombinedCustomer bool     `json:"combinedCustomer"`
	SkipShopping     bool     `json:"skipShopping"`
	CreatedAt        string   `json:"createdAt"`
}

// ActiveBatches возвращает недоставленные заказы текущего шоппера единым списком.
func (h *Handler) ActiveBatches(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	batches, err := h.service.ActiveBatches(r.Context(), shopperID)
	if err != nil {
		h.logger.Error("active batches error", zap.Error(err), zap.String("shopperID", shopperID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(batches) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		item := batchResponse{
			OrderType:        string(b.OrderType),
			OrderID:          b.OrderID.String(),
			Status:           string(b.Status),
			Earnings:         b.Earnings.String(),
			Units:            b.Units,
			OrderCount:       b.OrderCount,
			ShopNames:        b.ShopNames,
			CustomerNames:    b.CustomerNames,
			Addresses:        b.Addresses,
			CombinedCustomer: b.CombinedCustomer,
			SkipShopping:     b.SkipShopping,
			CreatedAt:        b.CreatedAt.Format(time.RFC3339),
		}
		if b.CombinedOrderID != nil {
			s := b.CombinedOrderID.String()
			item.CombinedOrderID = &s
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, resp)
}

type settleRequest struct {
	OrderID     string `json:"orderId"`
	OrderType   string `json:"orderType"`
	FoundAmount string `json:"foundAmount"`
	MomoRef     string `json:"momoRef"`
	MomoCode    string `json:"momoCode"`
}

type settleResponse struct {
	OrderIDs        []string `json:"orderIds"`
	OriginalAmount  string   `json:"originalAmount"`
	FoundAmount     string   `json:"foundAmount"`
	RefundAmount    string   `json:"refundAmount"`
	RefundCreated   bool     `json:"refundCreated"`
	ReservedBalance string   `json:"reservedBalance"`
}

// SettlePayment выполняет расчёт по заказу или объединённой группе.
func (h *Handler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	foundAmount, ok := validation.ParseAmount(req.FoundAmount)
	if !ok {
		http.Error(w, "invalid found amount", http.StatusBadRequest)
		return
	}

	orderType := model.OrderType(req.OrderType)
	if orderType == "" {
		orderType = model.OrderTypeRegular
	}

	result, err := h.service.SettlePayment(r.Context(), shopperID, service.SettleInput{
		OrderID:     orderID,
		OrderType:   orderType,
		FoundAmount: foundAmount,
		MomoRef:     req.MomoRef,
		MomoCode:    req.MomoCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientReserved):
			http.Error(w, err.Error(), http.StatusPaymentRequired)
		case errors.Is(err, service.ErrOrderNotAssigned):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrUnknownOrderType):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrWalletNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("settle payment error", zap.Error(err), zap.String("orderID", req.OrderID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	orderIDs := make([]string, 0, len(result.OrderIDs))
	for _, id := range result.OrderIDs {
		orderIDs = append(orderIDs, id.String())
	}

	h.writeJSON(w, settleResponse{
		OrderIDs:        orderIDs,
		OriginalAmount:  result.OriginalAmount.String(),
		FoundAmount:     result.FoundAmount.String(),
		RefundAmount:    result.RefundAmount.String(),
		RefundCreated:   result.RefundCreated,
		ReservedBalance: result.ReservedBalance.String(),
	})
}

type storeEarningsResponse struct {
	Name     string  `json:"name"`
	Earnings string  `json:"earnings"`
	Percent  float64 `json:"percent"`
}

type earningsStatsResponse struct {
	TotalEarnings    string                  `json:"totalEarnings"`
	WeekEarnings     string                  `json:"weekEarnings"`
	MonthEarnings    string                  `json:"monthEarnings"`
	QuarterEarnings  string                  `json:"quarterEarnings"`
	DeliveredCount   int                     `json:"deliveredCount"`
	StoreBreakdown   []storeEarningsResponse `json:"storeBreakdown"`
	CustomerRating   float64                 `json:"customerRating"`
	OnTimeRate       float64                 `json:"onTimeRate"`
	OrderAccuracy    float64                 `json:"orderAccuracy"`
	AcceptanceRate   float64                 `json:"acceptanceRate"`
	PerformanceScore float64                 `json:"performanceScore"`
}

// EarningsStats возвращает статистику заработка текущего шоппера.
func (h *Handler) EarningsStats(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	stats, err := h.service.EarningsStats(r.Context(), shopperID)
	if err != nil {
		h.logger.Error("earnings stats error", zap.Error(err), zap.String("shopperID", shopperID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	breakdown := make([]storeEarningsResponse, 0, len(stats.StoreBreakdown))
	for _, st := range stats.StoreBreakdown {
		breakdown = append(breakdown, storeEarningsResponse{
			Name:     st.Name,
			Earnings: st.Earnings.String(),
			Percent:  st.Percent,
		})
	}

	h.writeJSON(w, earningsStatsResponse{
		TotalEarnings:    stats.TotalEarnings.String(),
		WeekEarnings:     stats.WeekEarnings.String(),
		MonthEarnings:    stats.MonthEarnings.String(),
		QuarterEarnings:  stats.QuarterEarnings.String(),
		DeliveredCount:   stats.DeliveredCount,
		StoreBreakdown:   breakdown,
		CustomerRating:   stats.Metrics.CustomerRating,
		OnTimeRate:       stats.Metrics.OnTimeRate,
		OrderAccuracy:    stats.Metrics.OrderAccuracy,
		AcceptanceRate:   stats.Metrics.AcceptanceRate,
		PerformanceScore: stats.PerformanceScore,
	})
}

type deliverRequest struct {
	OrderType string `json:"orderType"`
	PIN       string `json:"pin"`
}

type deliverResponse struct {
	Verified bool     `json:"verified"`
	OrderIDs []string `json:"orderIds,omitempty"`
}

// ConfirmDelivery подтверждает доставку заказа по коду покупателя.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req deliverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !validation.IsValidPIN(req.PIN) {
		http.Error(w, "invalid pin format", http.StatusBadRequest)
		return
	}

	orderType := model.OrderType(req.OrderType)
	if orderType == "" {
		orderType = model.OrderTypeRegular
	}

	result, err := h.service.ConfirmDelivery(r.Context(), shopperID, orderID, orderType, req.PIN)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPINMismatch):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(deliverResponse{Verified: false})
		case errors.Is(err, service.ErrOrderNotAssigned):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrUnknownOrderType):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		default:
			h.logger.Error("confirm delivery error", zap.Error(err), zap.String("orderID", orderID.String()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	orderIDs := make([]string, 0, len(result.OrderIDs))
	for _, id := range result.OrderIDs {
		orderIDs = append(orderIDs, id.String())
	}

	h.writeJSON(w, deliverResponse{Verified: result.Verified, OrderIDs: orderIDs})
}

type invoiceResponse struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	Subtotal      string          `json:"subtotal"`
	Tax           string          `json:"tax"`
	ServiceFee    string          `json:"serviceFee"`
	DeliveryFee   string          `json:"deliveryFee"`
	Discount      string          `json:"discount"`
	Total         string          `json:"total"`
	LineItems     json.RawMessage `json:"lineItems"`
	CreatedAt     string          `json:"createdAt"`
}

// GetInvoice возвращает счёт по заказу.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetShopperIDFromContext(r.Context()); !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get invoice error", zap.Error(err), zap.String("orderID", orderID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, invoiceResponse{
		ID:            inv.ID.String(),
		OrderID:       inv.OrderID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Subtotal:      inv.Subtotal.String(),
		Tax:           inv.Tax.String(),
		ServiceFee:    inv.ServiceFee.String(),
		DeliveryFee:   inv.DeliveryFee.String(),
		Discount:      inv.Discount.String(),
		Total:         inv.Total.String(),
		LineItems:     inv.Items,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	})
}

type walletResponse struct {
	ID               string `json:"id"`
	AvailableBalance string `json:"availableBalance"`
	ReservedBalance  string `json:"reservedBalance"`
}

// GetWallet возвращает кошелёк текущего шоппера.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), shopperID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get wallet error", zap.Error(err), zap.String("shopperID", shopperID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, walletResponse{
		ID:               wallet.ID.String(),
		AvailableBalance: wallet.AvailableBalance.String(),
		ReservedBalance:  wallet.ReservedBalance.String(),
	})
}

type walletTransactionResponse struct {
	ID          string  `json:"id"`
	OrderID     *string `json:"orderId,omitempty"`
	Amount      string  `json:"amount"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"createdAt"`
}

// GetWalletTransactions возвращает журнал операций кошелька текущего шоппера.
func (h *Handler) GetWalletTransactions(w http.ResponseWriter, r *http.Request) {
	shopperID, ok := middleware.GetShopperIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.GetWalletTransactions(r.Context(), shopperID)
	if err != nil {
		h.logger.Error("get wallet transactions error", zap.Error(err), zap.String("shopperID", shopperID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]walletTransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		item := walletTransactionResponse{
			ID:          t.ID.String(),
			Amount:      t.Amount.String(),
			Type:        t.Type,
			Status:      t.Status,
			Description: t.Description,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		}
		if t.OrderID != nil {
			s := t.OrderID.String()
			item.OrderID = &s
		}
		resp = append(resp, item)
	}

	h.writeJSON(w, resp)
}
