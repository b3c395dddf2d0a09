package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

const MaxProductImages = 5

type User struct {
	ID           uuid.UUID
	Email        string
	Password     string
	DisplayName  string
	Role         string
	ProfileImage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func ValidRole(role string) bool {
	return role == RoleBuyer || role == RoleSeller || role == RoleAdmin
}

type Property struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Product struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	MainImage   string
	Images      []string
	Properties  []Property
	Stock       int
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Cart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem carries a snapshot of the product taken when it was first added.
type CartItem struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Name      string
	Price     decimal.Decimal
	MainImage string
	Quantity  int
}

func (c *Cart) Item(productID uuid.UUID) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

type Address struct {
	ID        uuid.UUID
	BuyerID   uuid.UUID
	FullName  string
	Phone     string
	Street    string
	City      string
	State     string
	Country   string
	Zip       string
	CreatedAt time.Time
}

// AddressSnapshot is the copy of an Address stored on orders.
type AddressSnapshot struct {
	FullName string `json:"full_name" bson:"full_name"`
	Phone    string `json:"phone" bson:"phone"`
	Street   string `json:"street" bson:"street"`
	City     string `json:"city" bson:"city"`
	State    string `json:"state" bson:"state"`
	Country  string `json:"country" bson:"country"`
	Zip      string `json:"zip" bson:"zip"`
}

func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		FullName: a.FullName, Phone: a.Phone, Street: a.Street,
		City: a.City, State: a.State, Country: a.Country, Zip: a.Zip,
	}
}

type OrderItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	MainImage string          `json:"main_image"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLineGroup is one seller's slice of an order. Status is tracked per group.
type OrderLineGroup struct {
	SellerID  uuid.UUID
	Status    OrderStatus
	Items     []OrderItem
	UpdatedAt time.Time
}

func (g OrderLineGroup) Subtotal() decimal.Decimal {
	return SumItems(g.Items)
}

type Order struct {
	ID        uuid.UUID
	BuyerID   uuid.UUID
	Address   AddressSnapshot
	Total     decimal.Decimal
	Groups    []OrderLineGroup
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status derives the order-level status from its seller groups.
func (o *Order) Status() OrderStatus {
	if len(o.Groups) == 0 {
		return OrderStatusCancelled
	}
	cancelled := 0
	for _, g := range o.Groups {
		switch g.Status {
		case OrderStatusPending:
			return OrderStatusPending
		case OrderStatusCancelled:
			cancelled++
		}
	}
	if cancelled == len(o.Groups) {
		return OrderStatusCancelled
	}
	return OrderStatusConfirmed
}

func (o *Order) Group(sellerID uuid.UUID) (*OrderLineGroup, bool) {
	for i := range o.Groups {
		if o.Groups[i].SellerID == sellerID {
			return &o.Groups[i], true
		}
	}
	return nil, false
}

func (o *Order) HasPending() bool {
	return o.Status() == OrderStatusPending
}

func (o *Order) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(o.Groups))
	for _, g := range o.Groups {
		ids = append(ids, g.SellerID)
	}
	return ids
}

func (o *Order) Items() []OrderItem {
	var items []OrderItem
	for _, g := range o.Groups {
		items = append(items, g.Items...)
	}
	return items
}

func (o *Order) RecomputeTotal() {
	o.Total = SumItems(o.Items())
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// HistoryOrder is the archived copy of one seller's slice of an order.
type HistoryOrder struct {
	ID              uuid.UUID
	OriginalOrderID uuid.UUID
	SellerID        uuid.UUID
	BuyerID         uuid.UUID
	Status          OrderStatus
	Items           []OrderItem
	Total           decimal.Decimal
	Address         AddressSnapshot
	OrderCreatedAt  time.Time
	ClearedAt       time.Time
}

const (
	EventOrderPlaced    = "order.placed"
	EventOrderConfirmed = "order.confirmed"
	EventOrderCancelled = "order.cancelled"
	EventOrderArchived  = "order.archived"
)

type OrderEvent struct {
	ID         uuid.UUID   `json:"id"`
	Type       string      `json:"type"`
	OrderID    uuid.UUID   `json:"order_id"`
	ActorID    uuid.UUID   `json:"actor_id"`
	SellerIDs  []uuid.UUID `json:"seller_ids"`
	Status     OrderStatus `json:"status"`
	ProductIDs []uuid.UUID `json:"product_ids"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// StatusRecord is one entry of an order's status timeline.
type StatusRecord struct {
	EventID   string      `bson:"event_id" json:"event_id"`
	OrderID   string      `bson:"order_id" json:"order_id"`
	SellerIDs []string    `bson:"seller_ids" json:"seller_ids"`
	Event     string      `bson:"event" json:"event"`
	Status    OrderStatus `bson:"status" json:"status"`
	ActorID   string      `bson:"actor_id" json:"actor_id"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}
