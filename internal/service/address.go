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

const defaultCountry = "Somalia"

type AddressService struct {
	addressRepo repository.AddressRepository
}

func NewAddressService(addressRepo repository.AddressRepository) *AddressService {
	return &AddressService{addressRepo: addressRepo}
}

func (s *AddressService) Create(ctx context.Context, buyerID uuid.UUID, req dto.CreateAddressRequest) (*model.Address, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = defaultCountry
	}
	address := &model.Address{
		BuyerID:  buyerID,
		FullName: strings.TrimSpace(req.FullName),
		Phone:    strings.TrimSpace(req.Phone),
		Street:   strings.TrimSpace(req.Street),
		City:     strings.TrimSpace(req.City),
		State:    strings.TrimSpace(req.State),
		Country:  country,
		Zip:      strings.TrimSpace(req.Zip),
	}
	if err := s.addressRepo.Create(ctx, address); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateAddress
		}
		return nil, fmt.Errorf("create address: %w", err)
	}
	return address, nil
}

func (s *AddressService) List(ctx context.Context, buyerID uuid.UUID) ([]model.Address, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	addresses, err := s.addressRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addresses, nil
}

// Get returns the address only when it belongs to buyerID.
func (s *AddressService) Get(ctx context.Context, buyerID, id uuid.UUID) (*model.Address, error) {
	address, err := s.addressRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if address == nil || address.BuyerID != buyerID {
		return nil, ErrAddressNotFound
	}
	return address, nil
}

func (s *AddressService) Delete(ctx context.Context, buyerID, id uuid.UUID) error {
	if _, err := s.Get(ctx, buyerID, id); err != nil {
		return err
	}
	if err := s.addressRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAddressNotFound
		}
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}
