// Package repository содержит доступ к данным через внешний GraphQL-шлюз.
// Сервис не владеет хранилищем: все запросы и мутации исполняет внешняя система.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/shopper-system/internal/model"
)

// ErrOrderNotFound возвращается, если заказ не найден во внешней системе.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrWalletNotFound возвращается, если у шоппера нет кошелька.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInvoiceNotFound возвращается, если для заказа ещё не сформирован счёт.
	ErrInvoiceNotFound = errors.New("invoice not found")
)

// Gateway описывает контракт GraphQL-клиента, используемый репозиторием.
type Gateway interface {
	Do(ctx context.Context, query string, variables map[string]any, out any) error
}

// GatewayRepository выполняет типизированные запросы и мутации через шлюз.
type GatewayRepository struct {
	gw Gateway
}

// NewGatewayRepository создаёт репозиторий поверх GraphQL-шлюза.
func NewGatewayRepository(gw Gateway) *GatewayRepository {
	return &GatewayRepository{gw: gw}
}

type shopRow struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type customerRow struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type addressRow struct {
	Street string `json:"street"`
	City   string `json:"city"`
}

func (a *addressRow) String() string {
	if a == nil {
		return ""
	}
	if a.City == "" {
		return a.Street
	}
	return a.Street + ", " + a.City
}

type orderItemRow struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Found    bool            `json:"found"`
}

type orderRow struct {
	ID              uuid.UUID       `json:"id"`
	ShopperID       *uuid.UUID      `json:"shopper_id"`
	CombinedOrderID *uuid.UUID      `json:"combined_order_id"`
	Status          string          `json:"status"`
	Total           decimal.Decimal `json:"total"`
	ServiceFee      decimal.Decimal `json:"service_fee"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	DeliveryPIN     string          `json:"delivery_pin"`
	CreatedAt       time.Time       `json:"created_at"`
	DeliveredAt     *time.Time      `json:"delivered_at"`
	Shop            *shopRow        `json:"shop"`
	Customer        *customerRow    `json:"customer"`
	Address         *addressRow     `json:"address"`
	Items           []orderItemRow  `json:"order_items"`
}

const orderFields = `
	id
	shopper_id
	combined_order_id
	status
	total
	service_fee
	delivery_fee
	delivery_pin
	created_at
	delivered_at
	shop { id name }
	customer { id name }
	address { street city }
	order_items { id name quantity price found }`

func (r *orderRow) toModel() model.Order {
	o := model.Order{
		ID:              r.ID,
		ShopperID:       r.ShopperID,
		CombinedOrderID: r.CombinedOrderID,
		Status:          model.OrderStatus(r.Status),
		Total:           r.Total,
		ServiceFee:      r.ServiceFee,
		DeliveryFee:     r.DeliveryFee,
		PIN:             r.DeliveryPIN,
		CreatedAt:       r.CreatedAt,
		DeliveredAt:     r.DeliveredAt,
		CustomerAddress: r.Address.String(),
	}
	if r.Shop != nil {
		o.ShopID = r.Shop.ID
		o.ShopName = r.Shop.Name
	}
	if r.Customer != nil {
		o.CustomerID = r.Customer.ID
		o.CustomerName = r.Customer.Name
	}
	for _, it := range r.Items {
		o.Items = append(o.Items, model.OrderItem{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Found:    it.Found,
		})
	}
	return o
}

func ordersToModel(rows []orderRow) []model.Order {
	res := make([]model.Order, 0, len(rows))
	for i := range rows {
		res = append(res, rows[i].toModel())
	}
	return res
}

// ActiveOrders возвращает недоставленные обычные заказы шоппера.
func (r *GatewayRepository) ActiveOrders(ctx context.Context, shopperID uuid.UUID) ([]model.Order, error) {
	query := `query ($shopperID: uuid!, $excluded: [String!]!) {
		orders(
			where: {shopper_id: {_eq: $shopperID}, status: {_nin: $excluded}},
			order_by: {created_at: desc}
		) {` + orderFields + `
		}
	}`

	var out struct {
		Orders []orderRow `json:"orders"`
	}
	err := r.gw.Do(ctx, query, map[string]any{
		"shopperID": shopperID.String(),
		"excluded":  []string{string(model.OrderStatusDelivered), string(model.OrderStatusCancelled)},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("select active orders: %w", err)
	}

	return ordersToModel(out.Orders), nil
}

// OrderByID возвращает заказ по идентификатору вместе с позициями.
func (r *GatewayRepository) OrderByID(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	query := `query ($id: uuid!) {
		orders_by_pk(id: $id) {` + orderFields + `
		}
	}`

	var out struct {
		Order *orderRow `json:"orders_by_pk"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"id": orderID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	if out.Order == nil {
		return nil, ErrOrderNotFound
	}

	o := out.Order.toModel()
	return &o, nil
}

// BatchOrders возвращает все заказы объединённой группы.
func (r *GatewayRepository) BatchOrders(ctx context.Context, combinedOrderID uuid.UUID) ([]model.Order, error) {
	query := `query ($combinedID: uuid!) {
		orders(
			where: {combined_order_id: {_eq: $combinedID}},
			order_by: {created_at: asc}
		) {` + orderFields + `
		}
	}`

	var out struct {
		Orders []orderRow `json:"orders"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"combinedID": combinedOrderID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select batch orders: %w", err)
	}

	return ordersToModel(out.Orders), nil
}

// DeliveredOrders возвращает доставленные заказы шоппера для статистики заработка.
func (r *GatewayRepository) DeliveredOrders(ctx context.Context, shopperID uuid.UUID) ([]model.Order, error) {
	query := `query ($shopperID: uuid!, $status: String!) {
		orders(
			where: {shopper_id: {_eq: $shopperID}, status: {_eq: $status}},
			order_by: {delivered_at: desc}
		) {
			id
			status
			total
			service_fee
			delivery_fee
			created_at
			delivered_at
			shop { id name }
		}
	}`

	var out struct {
		Orders []orderRow `json:"orders"`
	}
	err := r.gw.Do(ctx, query, map[string]any{
		"shopperID": shopperID.String(),
		"status":    string(model.OrderStatusDelivered),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("select delivered orders: %w", err)
	}

	return ordersToModel(out.Orders), nil
}

type reelOrderRow struct {
	ID           uuid.UUID       `json:"id"`
	ShopperID    *uuid.UUID      `json:"shopper_id"`
	Status       string          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	ServiceFee   decimal.Decimal `json:"service_fee"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	DeliveryPIN  string          `json:"delivery_pin"`
	Title        string          `json:"title"`
	Quantity     int             `json:"quantity"`
	RestaurantID *uuid.UUID      `json:"restaurant_id"`
	UserID       *uuid.UUID      `json:"user_id"`
	Customer     *customerRow    `json:"customer"`
	Address      *addressRow     `json:"address"`
	CreatedAt    time.Time       `json:"created_at"`
}

const reelOrderFields = `
	id
	shopper_id
	status
	total
	service_fee
	delivery_fee
	delivery_pin
	title
	quantity
	restaurant_id
	user_id
	customer { id name }
	address { street city }
	created_at`

func (r *reelOrderRow) toModel() model.ReelOrder {
	o := model.ReelOrder{
		ID:              r.ID,
		ShopperID:       r.ShopperID,
		Status:          model.OrderStatus(r.Status),
		Total:           r.Total,
		ServiceFee:      r.ServiceFee,
		DeliveryFee:     r.DeliveryFee,
		PIN:             r.DeliveryPIN,
		Title:           r.Title,
		Quantity:        r.Quantity,
		RestaurantID:    r.RestaurantID,
		UserID:          r.UserID,
		CustomerAddress: r.Address.String(),
		CreatedAt:       r.CreatedAt,
	}
	if r.Customer != nil {
		o.CustomerName = r.Customer.Name
	}
	return o
}

// ActiveReelOrders возвращает недоставленные заказы по роликам.
func (r *GatewayRepository) ActiveReelOrders(ctx context.Context, shopperID uuid.UUID) ([]model.ReelOrder, error) {
	query := `query ($shopperID: uuid!, $excluded: [String!]!) {
		reel_orders(
			where: {shopper_id: {_eq: $shopperID}, status: {_nin: $excluded}},
			order_by: {created_at: desc}
		) {` + reelOrderFields + `
		}
	}`

	var out struct {
		Orders []reelOrderRow `json:"reel_orders"`
	}
	err := r.gw.Do(ctx, query, map[string]any{
		"shopperID": shopperID.String(),
		"excluded":  []string{string(model.OrderStatusDelivered), string(model.OrderStatusCancelled)},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("select active reel orders: %w", err)
	}

	res := make([]model.ReelOrder, 0, len(out.Orders))
	for i := range out.Orders {
		res = append(res, out.Orders[i].toModel())
	}
	return res, nil
}

// ReelOrderByID возвращает заказ по ролику по идентификатору.
func (r *GatewayRepository) ReelOrderByID(ctx context.Context, orderID uuid.UUID) (*model.ReelOrder, error) {
	query := `query ($id: uuid!) {
		reel_orders_by_pk(id: $id) {` + reelOrderFields + `
		}
	}`

	var out struct {
		Order *reelOrderRow `json:"reel_orders_by_pk"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"id": orderID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select reel order: %w", err)
	}
	if out.Order == nil {
		return nil, ErrOrderNotFound
	}

	o := out.Order.toModel()
	return &o, nil
}

type restaurantOrderRow struct {
	ID          uuid.UUID       `json:"id"`
	ShopperID   *uuid.UUID      `json:"shopper_id"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	ServiceFee  decimal.Decimal `json:"service_fee"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	DeliveryPIN string          `json:"delivery_pin"`
	Restaurant  *shopRow        `json:"restaurant"`
	Customer    *customerRow    `json:"customer"`
	Address     *addressRow     `json:"address"`
	ItemsAgg    struct {
		Aggregate struct {
			Count int `json:"count"`
		} `json:"aggregate"`
	} `json:"items_aggregate"`
	CreatedAt time.Time `json:"created_at"`
}

const restaurantOrderFields = `
	id
	shopper_id
	status
	total
	service_fee
	delivery_fee
	delivery_pin
	restaurant { id name }
	customer { id name }
	address { street city }
	items_aggregate { aggregate { count } }
	created_at`

func (r *restaurantOrderRow) toModel() model.RestaurantOrder {
	o := model.RestaurantOrder{
		ID:              r.ID,
		ShopperID:       r.ShopperID,
		Status:          model.OrderStatus(r.Status),
		Total:           r.Total,
		ServiceFee:      r.ServiceFee,
		DeliveryFee:     r.DeliveryFee,
		PIN:             r.DeliveryPIN,
		CustomerAddress: r.Address.String(),
		ItemCount:       r.ItemsAgg.Aggregate.Count,
		CreatedAt:       r.CreatedAt,
	}
	if r.Restaurant != nil {
		o.RestaurantName = r.Restaurant.Name
	}
	if r.Customer != nil {
		o.CustomerName = r.Customer.Name
	}
	return o
}

// ActiveRestaurantOrders возвращает недоставленные ресторанные заказы.
func (r *GatewayRepository) ActiveRestaurantOrders(ctx context.Context, shopperID uuid.UUID) ([]model.RestaurantOrder, error) {
	query := `query ($shopperID: uuid!, $excluded: [String!]!) {
		restaurant_orders(
			where: {shopper_id: {_eq: $shopperID}, status: {_nin: $excluded}},
			order_by: {created_at: desc}
		) {` + restaurantOrderFields + `
		}
	}`

	var out struct {
		Orders []restaurantOrderRow `json:"restaurant_orders"`
	}
	err := r.gw.Do(ctx, query, map[string]any{
		"shopperID": shopperID.String(),
		"excluded":  []string{string(model.OrderStatusDelivered), string(model.OrderStatusCancelled)},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("select active restaurant orders: %w", err)
	}

	res := make([]model.RestaurantOrder, 0, len(out.Orders))
	for i := range out.Orders {
		res = append(res, out.Orders[i].toModel())
	}
	return res, nil
}

// RestaurantOrderByID возвращает ресторанный заказ по идентификатору.
func (r *GatewayRepository) RestaurantOrderByID(ctx context.Context, orderID uuid.UUID) (*model.RestaurantOrder, error) {
	query := `query ($id: uuid!) {
		restaurant_orders_by_pk(id: $id) {` + restaurantOrderFields + `
		}
	}`

	var out struct {
		Order *restaurantOrderRow `json:"restaurant_orders_by_pk"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"id": orderID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select restaurant order: %w", err)
	}
	if out.Order == nil {
		return nil, ErrOrderNotFound
	}

	o := out.Order.toModel()
	return &o, nil
}

type walletRow struct {
	ID               uuid.UUID       `json:"id"`
	ShopperID        uuid.UUID       `json:"shopper_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	ReservedBalance  decimal.Decimal `json:"reserved_balance"`
}

// WalletByShopper возвращает кошелёк шоппера.
func (r *GatewayRepository) WalletByShopper(ctx context.Context, shopperID uuid.UUID) (*model.Wallet, error) {
	query := `query ($shopperID: uuid!) {
		wallets(where: {shopper_id: {_eq: $shopperID}}, limit: 1) {
			id
			shopper_id
			available_balance
			reserved_balance
		}
	}`

	var out struct {
		Wallets []walletRow `json:"wallets"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"shopperID": shopperID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	if len(out.Wallets) == 0 {
		return nil, ErrWalletNotFound
	}

	w := out.Wallets[0]
	return &model.Wallet{
		ID:               w.ID,
		ShopperID:        w.ShopperID,
		AvailableBalance: w.AvailableBalance,
		ReservedBalance:  w.ReservedBalance,
	}, nil
}

// RefundExists сообщает, создан ли уже возврат по заказу.
// Используется для идемпотентности повторных попыток расчёта.
func (r *GatewayRepository) RefundExists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	query := `query ($orderID: uuid!) {
		refunds_aggregate(where: {order_id: {_eq: $orderID}}) {
			aggregate { count }
		}
	}`

	var out struct {
		Agg struct {
			Aggregate struct {
				Count int `json:"count"`
			} `json:"aggregate"`
		} `json:"refunds_aggregate"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"orderID": orderID.String()}, &out); err != nil {
		return false, fmt.Errorf("count refunds: %w", err)
	}

	return out.Agg.Aggregate.Count > 0, nil
}

// RefundInput описывает создаваемый возврат.
// ID генерируется вызывающей стороной и не меняется между повторами.
type RefundInput struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Reason      string
	GeneratedBy string
}

// TransactionInput описывает создаваемую запись журнала кошелька.
// ID генерируется вызывающей стороной и не меняется между повторами.
type TransactionInput struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	OrderID     uuid.UUID
	Amount      decimal.Decimal
	Type        string
	Status      string
	Description string
}

// SettleBatchInput — входные данные атомарной мутации расчёта.
type SettleBatchInput struct {
	WalletID           uuid.UUID
	NewReservedBalance decimal.Decimal
	Refund             *RefundInput
	Transactions       []TransactionInput
}

// SettleBatch списывает резерв кошелька и записывает возврат и проводки журнала
// одним GraphQL-документом. Поля мутации шлюз исполняет в одной транзакции БД:
// частичное применение (списание без проводок) невозможно. Вставки защищены
// on_conflict по ключам строк: повторная отправка документа после потерянного
// ответа не создаёт дубликатов, а резерв выставляется в абсолютное значение.
func (r *GatewayRepository) SettleBatch(ctx context.Context, in SettleBatchInput) error {
	mutation := `mutation ($walletID: uuid!, $reserved: numeric!, $refunds: [refunds_insert_input!]!, $transactions: [wallet_transactions_insert_input!]!) {
		update_wallets_by_pk(pk_columns: {id: $walletID}, _set: {reserved_balance: $reserved}) {
			id
		}
		insert_refunds(
			objects: $refunds,
			on_conflict: {constraint: refunds_order_id_key, update_columns: []}
		) {
			affected_rows
		}
		insert_wallet_transactions(
			objects: $transactions,
			on_conflict: {constraint: wallet_transactions_pkey, update_columns: []}
		) {
			affected_rows
		}
	}`

	refunds := []map[string]any{}
	if in.Refund != nil {
		refunds = append(refunds, map[string]any{
			"id":           in.Refund.ID.String(),
			"order_id":     in.Refund.OrderID.String(),
			"amount":       in.Refund.Amount.String(),
			"reason":       in.Refund.Reason,
			"status":       string(model.RefundStatusPending),
			"generated_by": in.Refund.GeneratedBy,
		})
	}

	transactions := make([]map[string]any, 0, len(in.Transactions))
	for _, t := range in.Transactions {
		transactions = append(transactions, map[string]any{
			"id":          t.ID.String(),
			"wallet_id":   t.WalletID.String(),
			"order_id":    t.OrderID.String(),
			"amount":      t.Amount.String(),
			"type":        t.Type,
			"status":      t.Status,
			"description": t.Description,
		})
	}

	var out struct {
		Wallet *struct {
			ID uuid.UUID `json:"id"`
		} `json:"update_wallets_by_pk"`
	}
	err := r.gw.Do(ctx, mutation, map[string]any{
		"walletID":     in.WalletID.String(),
		"reserved":     in.NewReservedBalance.String(),
		"refunds":      refunds,
		"transactions": transactions,
	}, &out)
	if err != nil {
		return fmt.Errorf("settle batch: %w", err)
	}
	if out.Wallet == nil {
		return ErrWalletNotFound
	}

	return nil
}

// MarkOrdersDelivered переводит заказы в статус delivered с отметкой времени.
func (r *GatewayRepository) MarkOrdersDelivered(ctx context.Context, orderIDs []uuid.UUID) error {
	if len(orderIDs) == 0 {
		return nil
	}

	mutation := `mutation ($ids: [uuid!]!, $status: String!, $deliveredAt: timestamptz!) {
		update_orders(
			where: {id: {_in: $ids}},
			_set: {status: $status, delivered_at: $deliveredAt}
		) {
			affected_rows
		}
	}`

	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		ids = append(ids, id.String())
	}

	var out struct {
		Update struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"update_orders"`
	}
	err := r.gw.Do(ctx, mutation, map[string]any{
		"ids":         ids,
		"status":      string(model.OrderStatusDelivered),
		"deliveredAt": time.Now().UTC().Format(time.RFC3339),
	}, &out)
	if err != nil {
		return fmt.Errorf("mark orders delivered: %w", err)
	}
	if out.Update.AffectedRows != len(orderIDs) {
		return fmt.Errorf("mark orders delivered: affected %d of %d", out.Update.AffectedRows, len(orderIDs))
	}

	return nil
}

// MarkReelOrderDelivered переводит заказ по ролику в статус delivered.
func (r *GatewayRepository) MarkReelOrderDelivered(ctx context.Context, orderID uuid.UUID) error {
	return r.markSingleDelivered(ctx, "update_reel_orders_by_pk", orderID)
}

// MarkRestaurantOrderDelivered переводит ресторанный заказ в статус delivered.
func (r *GatewayRepository) MarkRestaurantOrderDelivered(ctx context.Context, orderID uuid.UUID) error {
	return r.markSingleDelivered(ctx, "update_restaurant_orders_by_pk", orderID)
}

func (r *GatewayRepository) markSingleDelivered(ctx context.Context, field string, orderID uuid.UUID) error {
	mutation := `mutation ($id: uuid!, $status: String!, $deliveredAt: timestamptz!) {
		` + field + `(
			pk_columns: {id: $id},
			_set: {status: $status, delivered_at: $deliveredAt}
		) {
			id
		}
	}`

	var raw map[string]json.RawMessage
	err := r.gw.Do(ctx, mutation, map[string]any{
		"id":          orderID.String(),
		"status":      string(model.OrderStatusDelivered),
		"deliveredAt": time.Now().UTC().Format(time.RFC3339),
	}, &raw)
	if err != nil {
		return fmt.Errorf("mark order delivered: %w", err)
	}
	if v, ok := raw[field]; !ok || strings.TrimSpace(string(v)) == "null" {
		return ErrOrderNotFound
	}

	return nil
}

// InvoiceInput описывает создаваемый снимок счёта по заказу.
type InvoiceInput struct {
	OrderID       uuid.UUID
	InvoiceNumber string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	ServiceFee    decimal.Decimal
	DeliveryFee   decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Items         json.RawMessage
}

// CreateInvoices вставляет снимки счетов по доставленным заказам.
func (r *GatewayRepository) CreateInvoices(ctx context.Context, inputs []InvoiceInput) error {
	if len(inputs) == 0 {
		return nil
	}

	mutation := `mutation ($invoices: [invoices_insert_input!]!) {
		insert_invoices(objects: $invoices) {
			affected_rows
		}
	}`

	objects := make([]map[string]any, 0, len(inputs))
	for _, in := range inputs {
		var items any
		if len(in.Items) > 0 {
			if err := json.Unmarshal(in.Items, &items); err != nil {
				return fmt.Errorf("decode invoice items: %w", err)
			}
		}
		objects = append(objects, map[string]any{
			"order_id":       in.OrderID.String(),
			"invoice_number": in.InvoiceNumber,
			"subtotal":       in.Subtotal.String(),
			"tax":            in.Tax.String(),
			"service_fee":    in.ServiceFee.String(),
			"delivery_fee":   in.DeliveryFee.String(),
			"discount":       in.Discount.String(),
			"total":          in.Total.String(),
			"line_items":     items,
		})
	}

	var out struct {
		Insert struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"insert_invoices"`
	}
	if err := r.gw.Do(ctx, mutation, map[string]any{"invoices": objects}, &out); err != nil {
		return fmt.Errorf("insert invoices: %w", err)
	}

	return nil
}

type invoiceRow struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	LineItems     json.RawMessage `json:"line_items"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InvoiceByOrder возвращает счёт по заказу.
func (r *GatewayRepository) InvoiceByOrder(ctx context.Context, orderID uuid.UUID) (*model.Invoice, error) {
	query := `query ($orderID: uuid!) {
		invoices(where: {order_id: {_eq: $orderID}}, limit: 1) {
			id
			order_id
			invoice_number
			subtotal
			tax
			service_fee
			delivery_fee
			discount
			total
			line_items
			created_at
		}
	}`

	var out struct {
		Invoices []invoiceRow `json:"invoices"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"orderID": orderID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select invoice: %w", err)
	}
	if len(out.Invoices) == 0 {
		return nil, ErrInvoiceNotFound
	}

	inv := out.Invoices[0]
	return &model.Invoice{
		ID:            inv.ID,
		OrderID:       inv.OrderID,
		InvoiceNumber: inv.InvoiceNumber,
		Subtotal:      inv.Subtotal,
		Tax:           inv.Tax,
		ServiceFee:    inv.ServiceFee,
		DeliveryFee:   inv.DeliveryFee,
		Discount:      inv.Discount,
		Total:         inv.Total,
		Items:         inv.LineItems,
		CreatedAt:     inv.CreatedAt,
	}, nil
}

// DeliveredOrdersWithoutInvoice возвращает доставленные заказы, по которым
// ещё не сформирован счёт. Используется фоновым дозаполнением.
func (r *GatewayRepository) DeliveredOrdersWithoutInvoice(ctx context.Context, limit int) ([]model.Order, error) {
	query := `query ($status: String!, $limit: Int!) {
		orders(
			where: {status: {_eq: $status}, _not: {invoice: {}}},
			order_by: {delivered_at: asc},
			limit: $limit
		) {` + orderFields + `
		}
	}`

	var out struct {
		Orders []orderRow `json:"orders"`
	}
	err := r.gw.Do(ctx, query, map[string]any{
		"status": string(model.OrderStatusDelivered),
		"limit":  limit,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("select orders without invoice: %w", err)
	}

	return ordersToModel(out.Orders), nil
}

type walletTransactionRow struct {
	ID          uuid.UUID       `json:"id"`
	WalletID    uuid.UUID       `json:"wallet_id"`
	OrderID     *uuid.UUID      `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// WalletTransactions возвращает журнал операций кошелька шоппера, новые первыми.
func (r *GatewayRepository) WalletTransactions(ctx context.Context, shopperID uuid.UUID) ([]model.WalletTransaction, error) {
	query := `query ($shopperID: uuid!) {
		wallet_transactions(
			where: {wallet: {shopper_id: {_eq: $shopperID}}},
			order_by: {created_at: desc}
		) {
			id
			wallet_id
			order_id
			amount
			type
			status
			description
			created_at
		}
	}`

	var out struct {
		Transactions []walletTransactionRow `json:"wallet_transactions"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"shopperID": shopperID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select wallet transactions: %w", err)
	}

	res := make([]model.WalletTransaction, 0, len(out.Transactions))
	for _, t := range out.Transactions {
		res = append(res, model.WalletTransaction{
			ID:          t.ID,
			WalletID:    t.WalletID,
			OrderID:     t.OrderID,
			Amount:      t.Amount,
			Type:        t.Type,
			Status:      t.Status,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	return res, nil
}

type shopperMetricsRow struct {
	Rating         *float64 `json:"rating"`
	OrderAccuracy  *float64 `json:"order_accuracy"`
	AcceptanceRate *float64 `json:"acceptance_rate"`
}

// ShopperMetrics возвращает сохранённые показатели шоппера.
// Доля доставок вовремя внешней системой не хранится и здесь не заполняется.
func (r *GatewayRepository) ShopperMetrics(ctx context.Context, shopperID uuid.UUID) (*model.PerformanceMetrics, error) {
	query := `query ($id: uuid!) {
		shoppers_by_pk(id: $id) {
			rating
			order_accuracy
			acceptance_rate
		}
	}`

	var out struct {
		Shopper *shopperMetricsRow `json:"shoppers_by_pk"`
	}
	if err := r.gw.Do(ctx, query, map[string]any{"id": shopperID.String()}, &out); err != nil {
		return nil, fmt.Errorf("select shopper metrics: %w", err)
	}
	if out.Shopper == nil {
		return &model.PerformanceMetrics{}, nil
	}

	m := &model.PerformanceMetrics{}
	if out.Shopper.Rating != nil {
		m.CustomerRating = *out.Shopper.Rating
	}
	if out.Shopper.OrderAccuracy != nil {
		m.OrderAccuracy = *out.Shopper.OrderAccuracy
	}
	if out.Shopper.AcceptanceRate != nil {
		m.AcceptanceRate = *out.Shopper.AcceptanceRate
	}
	return m, nil
}
