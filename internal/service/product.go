package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/dto"
	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

type ProductService struct {
	productRepo repository.ProductRepository
	tx          repository.TxManager
	cache       ProductCache
}

// NewProductService builds the catalog service. cache may be nil.
func NewProductService(productRepo repository.ProductRepository, tx repository.TxManager, cache ProductCache) *ProductService {
	return &ProductService{productRepo: productRepo, tx: tx, cache: cache}
}

func (s *ProductService) Create(ctx context.Context, sellerID uuid.UUID, req dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if sellerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	product := &model.Product{
		SellerID:    sellerID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		MainImage:   req.MainImage,
		Images:      req.Images,
		Properties:  req.Properties,
		Stock:       req.Stock,
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if product.Stock < 1 {
		return nil, fmt.Errorf("%w: stock must be at least 1", ErrInvalidProduct)
	}

	exists, err := s.productRepo.ExistsByNameAndDescription(ctx, product.Name, product.Description)
	if err != nil {
		return nil, fmt.Errorf("check duplicate product: %w", err)
	}
	if exists {
		return nil, ErrDuplicateProduct
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateProduct
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := dto.ToProductResponse(product)
	return &resp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ProductResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, id); ok {
			return cached, nil
		}
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := dto.ToProductResponse(product)
	if s.cache != nil {
		s.cache.Set(ctx, resp)
	}
	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	return s.list(ctx, req, uuid.Nil)
}

func (s *ProductService) ListBySeller(ctx context.Context, sellerID uuid.UUID, req dto.ListProductsRequest) (*dto.ProductListResponse, error) {
	if sellerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	return s.list(ctx, req, sellerID)
}

func (s *ProductService) list(ctx context.Context, req dto.ListProductsRequest, sellerID uuid.UUID) (*dto.ProductListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	products, total, err := s.productRepo.List(ctx, repository.ProductFilter{
		Limit: req.Limit, Offset: (req.Page - 1) * req.Limit,
		Search: req.Search, Category: req.Category, SellerID: sellerID,
		Sort: req.Sort, Order: req.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	items := make([]dto.ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, dto.ToProductResponse(&products[i]))
	}
	return &dto.ProductListResponse{Products: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func (s *ProductService) Update(ctx context.Context, actor Actor, id uuid.UUID, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	var updated *model.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.productRepo.GetForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}
		if product.SellerID != actor.ID && !actor.IsAdmin() {
			return ErrForbidden
		}

		applyProductUpdate(product, req)
		if err := validateProduct(product); err != nil {
			return err
		}

		expected := 0
		if req.Version != nil {
			expected = *req.Version
		}
		if err := s.productRepo.Update(ctx, product, expected); err != nil {
			switch {
			case errors.Is(err, repository.ErrStaleVersion):
				return fmt.Errorf("%w: product version %d is stale", ErrContention, expected)
			case errors.Is(err, repository.ErrDuplicate):
				return ErrDuplicateProduct
			case errors.Is(err, repository.ErrNotFound):
				return ErrProductNotFound
			}
			return fmt.Errorf("update product: %w", err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	resp := dto.ToProductResponse(updated)
	return &resp, nil
}

func (s *ProductService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}
	if product.SellerID != actor.ID && !actor.IsAdmin() {
		return ErrForbidden
	}
	if err := s.productRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *ProductService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, ids...)
	}
}

func applyProductUpdate(p *model.Product, req dto.UpdateProductRequest) {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Category != nil {
		p.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.MainImage != nil {
		p.MainImage = *req.MainImage
	}
	if req.Images != nil {
		p.Images = *req.Images
	}
	if req.Properties != nil {
		p.Properties = *req.Properties
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
}

func validateProduct(p *model.Product) error {
	switch {
	case p.Name == "" || p.Description == "" || p.Category == "":
		return fmt.Errorf("%w: name, description and category are required", ErrInvalidProduct)
	case !p.Price.IsPositive():
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidProduct)
	case p.MainImage == "":
		return fmt.Errorf("%w: main image is required", ErrInvalidProduct)
	case len(p.Images) > model.MaxProductImages:
		return fmt.Errorf("%w: at most %d allowed", ErrTooManyImages, model.MaxProductImages)
	case len(p.Properties) == 0:
		return fmt.Errorf("%w: at least one property is required", ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	for _, prop := range p.Properties {
		if strings.TrimSpace(prop.Key) == "" || strings.TrimSpace(prop.Value) == "" {
			return fmt.Errorf("%w: property key and value are required", ErrInvalidProduct)
		}
	}
	return nil
}
