package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	tx          repository.TxManager
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, tx repository.TxManager) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, tx: tx}
}

// GetCart returns the buyer's cart, or an empty one if nothing was added yet.
func (s *CartService) GetCart(ctx context.Context, buyerID uuid.UUID) (*model.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	cart, err := s.cartRepo.GetByUserID(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if cart == nil {
		return &model.Cart{UserID: buyerID, Items: []model.CartItem{}}, nil
	}
	return cart, nil
}

// AddItem adds one unit of the product to the buyer's cart.
func (s *CartService) AddItem(ctx context.Context, buyerID, productID uuid.UUID) (*model.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	var cart *model.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.cartRepo.GetOrCreateForUpdate(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}

		// Cart before product, the same order checkout locks in.
		product, err := s.productRepo.GetForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}
		if product.Stock == 0 {
			return fmt.Errorf("%w: %s", ErrOutOfStock, product.Name)
		}

		if item, ok := current.Item(productID); ok {
			if item.Quantity+1 > product.Stock {
				return fmt.Errorf("%w: %s has %d in stock", ErrStockLimitReached, product.Name, product.Stock)
			}
			if err := s.cartRepo.UpdateItemQuantity(ctx, current.ID, productID, item.Quantity+1); err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		} else {
			err := s.cartRepo.AddItem(ctx, current.ID, model.CartItem{
				ProductID: product.ID,
				SellerID:  product.SellerID,
				Name:      product.Name,
				Price:     product.Price,
				MainImage: product.MainImage,
				Quantity:  1,
			})
			if err != nil {
				return fmt.Errorf("add cart item: %w", err)
			}
		}

		cart, err = s.cartRepo.GetByUserID(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateQuantity sets an existing line to quantity, checked against current stock.
func (s *CartService) UpdateQuantity(ctx context.Context, buyerID, productID uuid.UUID, quantity int) (*model.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	var cart *model.Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.cartRepo.GetForUpdate(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if current == nil {
			return ErrCartItemNotFound
		}
		if _, ok := current.Item(productID); !ok {
			return ErrCartItemNotFound
		}

		product, err := s.productRepo.GetForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}
		if quantity > product.Stock {
			return fmt.Errorf("%w: %s has %d in stock", ErrInsufficientStock, product.Name, product.Stock)
		}

		if err := s.cartRepo.UpdateItemQuantity(ctx, current.ID, productID, quantity); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCartItemNotFound
			}
			return fmt.Errorf("update cart item: %w", err)
		}
		cart, err = s.cartRepo.GetByUserID(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem drops the product's line. Removing an absent line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, buyerID, productID uuid.UUID) error {
	if buyerID == uuid.Nil {
		return ErrUnauthenticated
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cart, err := s.cartRepo.GetForUpdate(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			return nil
		}
		if err := s.cartRepo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return fmt.Errorf("remove cart item: %w", err)
		}
		return nil
	})
}

type ClampedLine struct {
	ProductID uuid.UUID
	From      int
	To        int
}

type ReconcileResult struct {
	Cart    *model.Cart
	Removed []uuid.UUID
	Clamped []ClampedLine
}

// ReconcileWithStock drops lines whose product is gone or sold out and clamps
// the rest to the available stock, all in one transaction.
func (s *CartService) ReconcileWithStock(ctx context.Context, buyerID uuid.UUID) (*ReconcileResult, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	result := &ReconcileResult{Removed: []uuid.UUID{}, Clamped: []ClampedLine{}}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		result.Removed = result.Removed[:0]
		result.Clamped = result.Clamped[:0]

		cart, err := s.cartRepo.GetForUpdate(ctx, buyerID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if cart == nil {
			result.Cart = &model.Cart{UserID: buyerID, Items: []model.CartItem{}}
			return nil
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
			product := products[item.ProductID]
			switch {
			case product == nil || product.Stock == 0:
				if err := s.cartRepo.DeleteItem(ctx, cart.ID, item.ProductID); err != nil {
					return fmt.Errorf("remove cart item: %w", err)
				}
				result.Removed = append(result.Removed, item.ProductID)
			case item.Quantity > product.Stock:
				if err := s.cartRepo.UpdateItemQuantity(ctx, cart.ID, item.ProductID, product.Stock); err != nil {
					return fmt.Errorf("clamp cart item: %w", err)
				}
				result.Clamped = append(result.Clamped, ClampedLine{ProductID: item.ProductID, From: item.Quantity, To: product.Stock})
			}
		}

		result.Cart, err = s.cartRepo.GetByUserID(ctx, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
