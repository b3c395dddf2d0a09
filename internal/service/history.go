package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/flicky/marketplace-api/internal/model"
	"github.com/flicky/marketplace-api/internal/repository"
)

type HistoryService struct {
	orderRepo   repository.OrderRepository
	historyRepo repository.HistoryRepository
	tx          repository.TxManager
	publisher   EventPublisher
	log         *slog.Logger
}

// NewHistoryService builds the archival service. publisher may be nil.
func NewHistoryService(
	orderRepo repository.OrderRepository,
	historyRepo repository.HistoryRepository,
	tx repository.TxManager,
	publisher EventPublisher,
	log *slog.Logger,
) *HistoryService {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryService{orderRepo: orderRepo, historyRepo: historyRepo, tx: tx, publisher: publisher, log: log}
}

type ArchiveResult struct {
	Archived int
	Skipped  int
}

// ArchiveSellerOrders moves the seller's settled slices out of the live orders
// into history. An order is settled only when no group of any seller is pending.
// Each order is handled in its own transaction; re-running is safe.
func (s *HistoryService) ArchiveSellerOrders(ctx context.Context, sellerID uuid.UUID) (ArchiveResult, error) {
	var result ArchiveResult
	if sellerID == uuid.Nil {
		return result, ErrUnauthenticated
	}

	ids, err := s.orderRepo.ListArchivableIDs(ctx, sellerID)
	if err != nil {
		return result, fmt.Errorf("list archivable orders: %w", err)
	}

	log := s.log.With("seller_id", sellerID)
	for _, orderID := range ids {
		archived, remaining, err := s.archiveOne(ctx, sellerID, orderID)
		if err != nil {
			return result, fmt.Errorf("archive order %s: %w", orderID, err)
		}
		if archived == nil {
			result.Skipped++
			continue
		}
		result.Archived++
		log.Info("order slice archived", "order_id", orderID, "order_deleted", remaining == nil)

		g, _ := archived.Group(sellerID)
		event := newOrderEvent(model.EventOrderArchived, archived, sellerID, productIDsOf(g.Items))
		publishOrderEvent(ctx, s.publisher, log, event)
	}
	return result, nil
}

// archiveOne returns the archived order as it looked before archival, and the
// order left behind (nil when it was deleted). A nil archived order means the
// order no longer qualified.
func (s *HistoryService) archiveOne(ctx context.Context, sellerID, orderID uuid.UUID) (archived, remaining *model.Order, err error) {
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		archived, remaining = nil, nil

		order, err := s.orderRepo.GetForUpdate(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order: %w", err)
		}
		if order == nil || order.HasPending() {
			return nil
		}
		g, ok := order.Group(sellerID)
		if !ok {
			return nil
		}

		if _, err := s.historyRepo.Insert(ctx, &model.HistoryOrder{
			OriginalOrderID: order.ID,
			SellerID:        sellerID,
			BuyerID:         order.BuyerID,
			Status:          g.Status,
			Items:           g.Items,
			Total:           g.Subtotal(),
			Address:         order.Address,
			OrderCreatedAt:  order.CreatedAt,
		}); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		if err := s.orderRepo.RemoveGroup(ctx, order.ID, sellerID); err != nil {
			return fmt.Errorf("remove seller group: %w", err)
		}

		left := *order
		left.Groups = make([]model.OrderLineGroup, 0, len(order.Groups)-1)
		for _, other := range order.Groups {
			if other.SellerID != sellerID {
				left.Groups = append(left.Groups, other)
			}
		}

		if len(left.Groups) == 0 {
			if err := s.orderRepo.Delete(ctx, order.ID); err != nil {
				return fmt.Errorf("delete order: %w", err)
			}
		} else {
			left.RecomputeTotal()
			if err := s.orderRepo.UpdateTotal(ctx, order.ID, left.Total); err != nil {
				return fmt.Errorf("update order total: %w", err)
			}
			remaining = &left
		}
		archived = order
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return archived, remaining, nil
}

func (s *HistoryService) ListForSeller(ctx context.Context, sellerID uuid.UUID) ([]model.HistoryOrder, error) {
	if sellerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	history, err := s.historyRepo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller history: %w", err)
	}
	return history, nil
}

func (s *HistoryService) ListForBuyer(ctx context.Context, buyerID uuid.UUID) ([]model.HistoryOrder, error) {
	if buyerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	history, err := s.historyRepo.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer history: %w", err)
	}
	return history, nil
}
