// Package model содержит доменные сущности сервиса расчётов шопперов.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus описывает статус обработки заказа.
// Статусы определяются внешней системой и сравниваются только на равенство.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusShopping  OrderStatus = "shopping"
	OrderStatusPacking   OrderStatus = "packing"
	OrderStatusOnTheWay  OrderStatus = "on_the_way"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderType различает три независимые коллекции заказов.
type OrderType string

const (
	OrderTypeRegular    OrderType = "regular"
	OrderTypeReel       OrderType = "reel"
	OrderTypeRestaurant OrderType = "restaurant"
)

// OrderItem описывает позицию обычного заказа.
// Found выставляется шоппером в процессе сборки.
type OrderItem struct {
	ID       uuid.UUID
	Name     string
	Quantity int
	Price    decimal.Decimal
	Found    bool
}

// Order описывает обычный заказ магазина.
// CombinedOrderID группирует заказы одной поездки шоппера; nil — одиночный заказ.
type Order struct {
	ID              uuid.UUID
	ShopperID       *uuid.UUID
	CombinedOrderID *uuid.UUID
	Status          OrderStatus
	Total           decimal.Decimal
	ServiceFee      decimal.Decimal
	DeliveryFee     decimal.Decimal
	PIN             string
	ShopID          uuid.UUID
	ShopName        string
	CustomerID      uuid.UUID
	CustomerName    string
	CustomerAddress string
	Items           []OrderItem
	CreatedAt       time.Time
	DeliveredAt     *time.Time
}

// Earnings возвращает заработок шоппера по заказу: сервисный сбор плюс доставка.
func (o Order) Earnings() decimal.Decimal {
	return o.ServiceFee.Add(o.DeliveryFee)
}

// UnitCount возвращает суммарное количество единиц товара в заказе.
func (o Order) UnitCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// ReelOrder описывает заказ по видеоролику.
// Ненулевой RestaurantID или UserID означает заказ без этапа сборки.
type ReelOrder struct {
	ID              uuid.UUID
	ShopperID       *uuid.UUID
	Status          OrderStatus
	Total           decimal.Decimal
	ServiceFee      decimal.Decimal
	DeliveryFee     decimal.Decimal
	PIN             string
	Title           string
	Quantity        int
	RestaurantID    *uuid.UUID
	UserID          *uuid.UUID
	CustomerName    string
	CustomerAddress string
	CreatedAt       time.Time
}

// SkipShopping сообщает, что заказ по ролику не требует сборки в магазине.
func (o ReelOrder) SkipShopping() bool {
	return o.RestaurantID != nil || o.UserID != nil
}

// RestaurantOrder описывает ресторанный заказ.
type RestaurantOrder struct {
	ID              uuid.UUID
	ShopperID       *uuid.UUID
	Status          OrderStatus
	Total           decimal.Decimal
	ServiceFee      decimal.Decimal
	DeliveryFee     decimal.Decimal
	PIN             string
	RestaurantName  string
	CustomerName    string
	CustomerAddress string
	ItemCount       int
	CreatedAt       time.Time
}

// Wallet содержит баланс шоппера.
// ReservedBalance — средства, зарезервированные под незавершённые заказы;
// AvailableBalance — средства, доступные к выводу.
type Wallet struct {
	ID               uuid.UUID
	ShopperID        uuid.UUID
	AvailableBalance decimal.Decimal
	ReservedBalance  decimal.Decimal
}

// WalletTransaction описывает неизменяемую запись журнала операций кошелька.
type WalletTransaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	OrderID     *uuid.UUID
	Amount      decimal.Decimal
	Type        string
	Status      string
	Description string
	CreatedAt   time.Time
}

// RefundStatus описывает состояние возврата покупателю.
type RefundStatus string

const (
	RefundStatusPending RefundStatus = "pending"
	RefundStatusPaid    RefundStatus = "paid"
)

// Refund описывает возврат покупателю за несобранные позиции заказа.
type Refund struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Reason      string
	Status      RefundStatus
	GeneratedBy string
	CreatedAt   time.Time
}

// Invoice — снимок заказа, формируемый после доставки.
// Items хранит позиции в исходном JSON-виде внешней системы.
type Invoice struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	InvoiceNumber string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	ServiceFee    decimal.Decimal
	DeliveryFee   decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Items         json.RawMessage
	CreatedAt     time.Time
}

// OrderSummary — сводная запись активного заказа или объединённой группы
// для выдачи шопперу единым плоским списком.
type OrderSummary struct {
	OrderType        OrderType
	OrderID          uuid.UUID
	CombinedOrderID  *uuid.UUID
	Status           OrderStatus
	Earnings         decimal.Decimal
	Units            int
	OrderCount       int
	ShopNames        []string
	CustomerNames    []string
	Addresses        []string
	CombinedCustomer bool
	SkipShopping     bool
	CreatedAt        time.Time
}

// StoreEarnings — заработок по одному магазину в статистике.
type StoreEarnings struct {
	Name     string
	Earnings decimal.Decimal
	Percent  float64
}

// PerformanceMetrics — входы взвешенной оценки эффективности шоппера.
// Значения нормированы к диапазону 0–100, кроме CustomerRating (0–5).
type PerformanceMetrics struct {
	CustomerRating float64
	OnTimeRate     float64
	OrderAccuracy  float64
	AcceptanceRate float64
}

// EarningsStats — агрегированная статистика заработка шоппера.
type EarningsStats struct {
	TotalEarnings    decimal.Decimal
	WeekEarnings     decimal.Decimal
	MonthEarnings    decimal.Decimal
	QuarterEarnings  decimal.Decimal
	DeliveredCount   int
	StoreBreakdown   []StoreEarnings
	Metrics          PerformanceMetrics
	PerformanceScore float64
}
