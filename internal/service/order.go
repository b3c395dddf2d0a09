package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

type OrderServiceDeps struct {
	Orders    repository.OrderRepository
	Carts     repository.CartRepository
	Products  repository.ProductRepository
	Addresses repository.AddressRepository
	Tx        repository.TxManager
	Policy    model.TransitionPolicy
	// Optional collaborators; nil disables them.
	Publisher   EventPublisher
	Cache       ProductCache
	Idempotency IdempotencyStore
	Timeline    TimelineReader
	Log         *slog.Logger
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	addressRepo repository.AddressRepository
	tx          repository.TxManager
	policy      model.TransitionPolicy
	publisher   EventPublisher
	cache       ProductCache
	idempotency IdempotencyStore
	timeline    TimelineReader
	log         *slog.Logger
}

func NewOrderService(deps OrderServiceDeps) *OrderService {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &OrderService{
		orderRepo:   deps.Orders,
		cartRepo:    deps.Carts,
		productRepo: deps.Products,
		addressRepo: deps.Addresses,
		tx:          deps.Tx,
		policy:      deps.Policy,
		publisher:   deps.Publisher,
		cache:       deps.Cache,
		idempotency: deps.Idempotency,
		timeline:    deps.Timeline,
		log:         log,
	}
}

// PlaceOrder turns the buyer's cart into a pending order. Stock for every line
// is validated and decremented in the same transaction that writes the order
// and deletes the cart. A non-empty idempotencyKey makes retries return the
// order created by the first successful call.
func (s *OrderService) PlaceOrder(ctx context.Context, buyerID, addressID uuid.UUID, idempotencyKey string) (*model.Order, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	if idempotencyKey != "" && s.idempotency != nil {
		key := buyerID.String() + ":" + idempotencyKey
		existing, reserved, err := s.idempotency.Reserve(ctx, key)
		switch {
		case err != nil:
			s.log.Warn("idempotency store unavailable, placing order without it", "buyer_id", buyerID, "error", err)
		case !reserved && existing == uuid.Nil:
			return nil, ErrCheckoutInFlight
		case !reserved:
			return s.GetForBuyer(ctx, buyerID, existing)
		default:
			order, err := s.placeOrder(ctx, buyerID, addressID)
			if err != nil {
				if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
					s.log.Warn("release idempotency key", "buyer_id", buyerID, "error", relErr)
				}
				return nil, err
			}
			if err := s.idempotency.Complete(context.WithoutCancel(ctx), key, order.ID); err != nil {
				s.log.Warn("store idempotency key", "order_id", order.ID, "error", err)
			}
			return order, nil
		}
	}
	return s.placeOrder(ctx, buyerID, addressID)
}

func (s *OrderService) placeOrder(ctx context.Context, buyerID, addressID uuid.UUID) (*model.Order, error) {
	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		order = nil

		cart, err := s.cartRepo.GetForUpdate(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		address, err := s.addressRepo.GetByID(ctx, addressID)
		if err != nil {
			return fmt.Errorf("get address: %w", err)
		}
		if address == nil || address.BuyerID != buyerID {
			return ErrAddressNotFound
		}

		ids := make([]uuid.UUID, 0, len(cart.Items))
		for _, item := range cart.Items {
			ids = append(ids, item.ProductID)
		}
		sortIDs(ids)

		products, err := s.productRepo.GetManyForUpdate(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		for _, item := range cart.Items {
			p, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.Name)
			}
			if p.Stock < item.Quantity {
				return fmt.Errorf("%w: %s", ErrOutOfStock, p.Name)
			}
		}

		quantities := make(map[uuid.UUID]int, len(cart.Items))
		for _, item := range cart.Items {
			quantities[item.ProductID] = item.Quantity
		}
		for _, id := range ids {
			if err := s.productRepo.AdjustStock(ctx, id, -quantities[id]); err != nil {
				if errors.Is(err, repository.ErrNegativeStock) {
					return fmt.Errorf("%w: %s", ErrOutOfStock, products[id].Name)
				}
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		order = buildOrder(buyerID, address.Snapshot(), cart.Items, products)
		if err := s.orderRepo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.cartRepo.Delete(ctx, cart.ID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	productIDs := productIDsOf(order.Items())
	s.invalidate(ctx, productIDs...)
	s.publish(ctx, model.EventOrderPlaced, order, buyerID, productIDs)
	s.log.Info("order placed", "order_id", order.ID, "buyer_id", buyerID, "sellers", len(order.Groups), "total", order.Total.String())
	return order, nil
}

// buildOrder splits cart lines into one pending group per seller, keeping the
// order in which sellers first appear in the cart.
func buildOrder(buyerID uuid.UUID, address model.AddressSnapshot, lines []model.CartItem, products map[uuid.UUID]*model.Product) *model.Order {
	order := &model.Order{BuyerID: buyerID, Address: address}
	for _, line := range lines {
		p := products[line.ProductID]
		item := model.OrderItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Price:     p.Price,
			MainImage: p.MainImage,
			Quantity:  line.Quantity,
		}
		if g, ok := order.Group(p.SellerID); ok {
			g.Items = append(g.Items, item)
			continue
		}
		order.Groups = append(order.Groups, model.OrderLineGroup{
			SellerID: p.SellerID,
			Status:   model.OrderStatusPending,
			Items:    []model.OrderItem{item},
		})
	}
	order.RecomputeTotal()
	return order
}

// Confirm moves the seller's group from pending to confirmed.
func (s *OrderService) Confirm(ctx context.Context, sellerID, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.transitionGroup(ctx, sellerID, orderID, model.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.EventOrderConfirmed, order, sellerID, nil)
	return order, nil
}

// CancelBySeller cancels the seller's group and puts its items back in stock.
// The status check and restock share one transaction under the order row lock,
// so a repeated cancel fails with ErrInvalidTransition instead of restocking twice.
func (s *OrderService) CancelBySeller(ctx context.Context, sellerID, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.transitionGroup(ctx, sellerID, orderID, model.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	g, _ := order.Group(sellerID)
	productIDs := productIDsOf(g.Items)
	s.invalidate(ctx, productIDs...)
	s.publish(ctx, model.EventOrderCancelled, order, sellerID, productIDs)
	return order, nil
}

func (s *OrderService) transitionGroup(ctx context.Context, sellerID, orderID uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	if sellerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	var order *model.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		g, ok := order.Group(sellerID)
		if !ok {
			return ErrOrderNotFound
		}
		if !s.policy.CanTransition(g.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, to)
		}
		if to == model.OrderStatusCancelled {
			if err := s.restock(ctx, g.Items); err != nil {
				return err
			}
		}
		if err := s.orderRepo.UpdateGroupStatus(ctx, orderID, sellerID, to); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		g.Status = to
		g.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order group status changed", "order_id", orderID, "seller_id", sellerID, "status", to)
	return order, nil
}

// CancelByBuyer cancels every group of the buyer's order that may still be
// cancelled, restocking each one.
func (s *OrderService) CancelByBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*model.Order, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	var order *model.Order
	var restocked []model.OrderItem
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		restocked = nil
		var err error
		order, err = s.orderRepo.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.BuyerID != buyerID {
			return ErrOrderAccessDenied
		}

		for i := range order.Groups {
			g := &order.Groups[i]
			if s.policy.CanTransition(g.Status, model.OrderStatusCancelled) {
				restocked = append(restocked, g.Items...)
			}
		}
		if len(restocked) == 0 {
			return fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status())
		}
		if err := s.restock(ctx, restocked); err != nil {
			return err
		}

		now := time.Now()
		for i := range order.Groups {
			g := &order.Groups[i]
			if !s.policy.CanTransition(g.Status, model.OrderStatusCancelled) {
				continue
			}
			if err := s.orderRepo.UpdateGroupStatus(ctx, orderID, g.SellerID, model.OrderStatusCancelled); err != nil {
				return fmt.Errorf("update order status: %w", err)
			}
			g.Status = model.OrderStatusCancelled
			g.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	productIDs := productIDsOf(restocked)
	s.invalidate(ctx, productIDs...)
	s.publish(ctx, model.EventOrderCancelled, order, buyerID, productIDs)
	s.log.Info("order cancelled by buyer", "order_id", orderID, "buyer_id", buyerID)
	return order, nil
}

// restock returns items to stock in ascending product order. Products deleted
// since checkout are skipped.
func (s *OrderService) restock(ctx context.Context, items []model.OrderItem) error {
	quantities := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		quantities[item.ProductID] += item.Quantity
	}
	ids := make([]uuid.UUID, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sortIDs(ids)

	for _, id := range ids {
		err := s.productRepo.AdjustStock(ctx, id, quantities[id])
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("restock skipped, product no longer exists", "product_id", id)
			continue
		}
		if err != nil {
			return fmt.Errorf("restock product %s: %w", id, err)
		}
	}
	return nil
}

func (s *OrderService) GetForBuyer(ctx context.Context, buyerID, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.BuyerID != buyerID {
		return nil, ErrOrderAccessDenied
	}
	return order, nil
}

func (s *OrderService) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.Order, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	orders, err := s.orderRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// ListForSeller returns the seller's view of each order: only their own group,
// with the total narrowed to that group's subtotal.
func (s *OrderService) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]model.Order, error) {
	if sellerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	orders, err := s.orderRepo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}
	views := make([]model.Order, 0, len(orders))
	for _, o := range orders {
		g, ok := o.Group(sellerID)
		if !ok {
			continue
		}
		o.Groups = []model.OrderLineGroup{*g}
		o.RecomputeTotal()
		views = append(views, o)
	}
	return views, nil
}

// Timeline returns the status history of an order visible to actor.
func (s *OrderService) Timeline(ctx context.Context, actor Actor, orderID uuid.UUID) ([]model.StatusRecord, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if _, isSeller := order.Group(actor.ID); order.BuyerID != actor.ID && !isSeller && !actor.IsAdmin() {
		return nil, ErrOrderAccessDenied
	}
	if s.timeline == nil {
		return []model.StatusRecord{}, nil
	}
	records, err := s.timeline.Timeline(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("read order timeline: %w", err)
	}
	return records, nil
}

func (s *OrderService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache != nil && len(ids) > 0 {
		s.cache.Invalidate(ctx, ids...)
	}
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *model.Order, actorID uuid.UUID, productIDs []uuid.UUID) {
	publishOrderEvent(ctx, s.publisher, s.log, newOrderEvent(eventType, order, actorID, productIDs))
}

func newOrderEvent(eventType string, order *model.Order, actorID uuid.UUID, productIDs []uuid.UUID) model.OrderEvent {
	if productIDs == nil {
		productIDs = []uuid.UUID{}
	}
	return model.OrderEvent{
		ID:         uuid.New(),
		Type:       eventType,
		OrderID:    order.ID,
		ActorID:    actorID,
		SellerIDs:  order.SellerIDs(),
		Status:     order.Status(),
		ProductIDs: productIDs,
		OccurredAt: time.Now().UTC(),
	}
}

// publishOrderEvent runs after commit; a failed publish is logged, not returned.
func publishOrderEvent(ctx context.Context, publisher EventPublisher, log *slog.Logger, event model.OrderEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Error("publish order event", "event", event.Type, "order_id", event.OrderID, "error", err)
	}
}

func productIDsOf(items []model.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// sortIDs orders ids the way PostgreSQL orders uuid values.
func sortIDs(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
}
