package service

import (
	"errors"

	"github.com/flicky/marketplace-api/internal/repository"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("forbidden")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrCannotDeleteSelf   = errors.New("cannot delete your own account")

	ErrProductNotFound  = errors.New("product not found")
	ErrDuplicateProduct = errors.New("product with the same name and description already exists")
	ErrTooManyImages    = errors.New("too many product images")
	ErrInvalidProduct   = errors.New("invalid product")

	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrInsufficientStock = errors.New("not enough stock")
	ErrStockLimitReached = errors.New("cart quantity already matches available stock")

	ErrAddressNotFound  = errors.New("address not found")
	ErrDuplicateAddress = errors.New("address already exists")

	ErrEmptyCart         = errors.New("cart is empty")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrCheckoutInFlight  = errors.New("checkout with this idempotency key is already in progress")

	ErrInvalidUpload = errors.New("invalid upload")

	// ErrContention means the operation lost a race too many times; the client may retry.
	ErrContention = repository.ErrContention
)
