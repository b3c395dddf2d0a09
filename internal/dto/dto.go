package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/marketplace-api/internal/model"
)

// --- Auth ---

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
	Role        string `json:"role" binding:"omitempty,oneof=buyer seller"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	ProfileImage string    `json:"profile_image,omitempty"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=buyer seller admin"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description" binding:"required"`
	Category    string           `json:"category" binding:"required"`
	Price       decimal.Decimal  `json:"price" binding:"required"`
	MainImage   string           `json:"main_image" binding:"required,url"`
	Images      []string         `json:"images" binding:"omitempty,dive,url"`
	Properties  []model.Property `json:"properties" binding:"required,min=1,dive"`
	Stock       int              `json:"stock" binding:"required,min=1"`
}

type UpdateProductRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	Category    *string           `json:"category"`
	Price       *decimal.Decimal  `json:"price"`
	MainImage   *string           `json:"main_image" binding:"omitempty,url"`
	Images      *[]string         `json:"images"`
	Properties  *[]model.Property `json:"properties"`
	Stock       *int              `json:"stock" binding:"omitempty,min=0"`
	// Version enables optimistic concurrency when set.
	Version *int `json:"version"`
}

type ListProductsRequest struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search   string `form:"search"`
	Category string `form:"category"`
	Sort     string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID          uuid.UUID        `json:"id"`
	SellerID    uuid.UUID        `json:"seller_id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Price       decimal.Decimal  `json:"price"`
	MainImage   string           `json:"main_image"`
	Images      []string         `json:"images"`
	Properties  []model.Property `json:"properties"`
	Stock       int              `json:"stock"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

func ToProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID: p.ID, SellerID: p.SellerID, Name: p.Name, Description: p.Description,
		Category: p.Category, Price: p.Price, MainImage: p.MainImage, Images: p.Images,
		Properties: p.Properties, Stock: p.Stock, Version: p.Version,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

type UploadResponse struct {
	URL string `json:"url"`
}

// --- Cart ---

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type CartItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	MainImage string          `json:"main_image"`
	Quantity  int             `json:"quantity"`
}

func ToCartResponse(cart *model.Cart) CartResponse {
	resp := CartResponse{Items: []CartItemResponse{}, Total: decimal.Zero}
	if cart == nil {
		return resp
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			ProductID: item.ProductID, SellerID: item.SellerID, Name: item.Name,
			Price: item.Price, MainImage: item.MainImage, Quantity: item.Quantity,
		})
	}
	resp.Total = cart.Total()
	return resp
}

type ReconcileResponse struct {
	Cart    CartResponse      `json:"cart"`
	Removed []uuid.UUID       `json:"removed"`
	Clamped []ClampedCartLine `json:"clamped"`
}

type ClampedCartLine struct {
	ProductID uuid.UUID `json:"product_id"`
	From      int       `json:"from"`
	To        int       `json:"to"`
}

// --- Address ---

type CreateAddressRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone" binding:"required"`
	Street   string `json:"street" binding:"required"`
	City     string `json:"city" binding:"required"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Zip      string `json:"zip"`
}

type AddressResponse struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	Country   string    `json:"country"`
	Zip       string    `json:"zip"`
	CreatedAt time.Time `json:"created_at"`
}

func ToAddressResponse(a *model.Address) AddressResponse {
	return AddressResponse{
		ID: a.ID, FullName: a.FullName, Phone: a.Phone, Street: a.Street, City: a.City,
		State: a.State, Country: a.Country, Zip: a.Zip, CreatedAt: a.CreatedAt,
	}
}

// --- Order ---

type CheckoutRequest struct {
	AddressID uuid.UUID `json:"address_id" binding:"required"`
}

type OrderResponse struct {
	ID        uuid.UUID             `json:"id"`
	BuyerID   uuid.UUID             `json:"buyer_id"`
	Status    model.OrderStatus     `json:"status"`
	Total     decimal.Decimal       `json:"total"`
	Address   model.AddressSnapshot `json:"address"`
	Groups    []OrderGroupResponse  `json:"groups"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type OrderGroupResponse struct {
	SellerID  uuid.UUID         `json:"seller_id"`
	Status    model.OrderStatus `json:"status"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	Items     []model.OrderItem `json:"items"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

func ToOrderResponse(o *model.Order) OrderResponse {
	resp := OrderResponse{
		ID: o.ID, BuyerID: o.BuyerID, Status: o.Status(), Total: o.Total, Address: o.Address,
		Groups: make([]OrderGroupResponse, 0, len(o.Groups)), CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
	for _, g := range o.Groups {
		resp.Groups = append(resp.Groups, OrderGroupResponse{
			SellerID: g.SellerID, Status: g.Status, Subtotal: g.Subtotal(), Items: g.Items, UpdatedAt: g.UpdatedAt,
		})
	}
	return resp
}

func ToOrderListResponse(orders []model.Order) OrderListResponse {
	resp := OrderListResponse{Orders: make([]OrderResponse, 0, len(orders)), Total: len(orders)}
	for i := range orders {
		resp.Orders = append(resp.Orders, ToOrderResponse(&orders[i]))
	}
	return resp
}

type TimelineResponse struct {
	OrderID uuid.UUID            `json:"order_id"`
	Events  []model.StatusRecord `json:"events"`
}

// --- History ---

type ArchiveResponse struct {
	Archived int `json:"archived"`
	Skipped  int `json:"skipped"`
}

type HistoryOrderResponse struct {
	ID              uuid.UUID             `json:"id"`
	OriginalOrderID uuid.UUID             `json:"original_order_id"`
	SellerID        uuid.UUID             `json:"seller_id"`
	BuyerID         uuid.UUID             `json:"buyer_id"`
	Status          model.OrderStatus     `json:"status"`
	Items           []model.OrderItem     `json:"items"`
	Total           decimal.Decimal       `json:"total"`
	Address         model.AddressSnapshot `json:"address"`
	OrderCreatedAt  time.Time             `json:"order_created_at"`
	ClearedAt       time.Time             `json:"cleared_at"`
}

func ToHistoryResponses(history []model.HistoryOrder) []HistoryOrderResponse {
	resp := make([]HistoryOrderResponse, 0, len(history))
	for _, h := range history {
		resp = append(resp, HistoryOrderResponse{
			ID: h.ID, OriginalOrderID: h.OriginalOrderID, SellerID: h.SellerID, BuyerID: h.BuyerID,
			Status: h.Status, Items: h.Items, Total: h.Total, Address: h.Address,
			OrderCreatedAt: h.OrderCreatedAt, ClearedAt: h.ClearedAt,
		})
	}
	return resp
}
