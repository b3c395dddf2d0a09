package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/marketplace-api/internal/model"
)

const timelineCollection = "order_timeline"

// TimelineStore keeps an append-only log of order status events in MongoDB.
type TimelineStore struct {
	col *mongo.Collection
}

func NewTimelineStore(db *mongo.Database) *TimelineStore {
	return &TimelineStore{col: db.Collection(timelineCollection)}
}

func (s *TimelineStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create timeline indexes: %w", err)
	}
	return nil
}

// Append stores the record once per event id; redelivered events are no-ops.
func (s *TimelineStore) Append(ctx context.Context, record model.StatusRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	_, err := s.col.UpdateOne(ctx,
		bson.M{"event_id": record.EventID},
		bson.M{"$setOnInsert": record},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append timeline record: %w", err)
	}
	return nil
}

func (s *TimelineStore) Timeline(ctx context.Context, orderID uuid.UUID) ([]model.StatusRecord, error) {
	cur, err := s.col.Find(ctx,
		bson.M{"order_id": orderID.String()},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find timeline: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.StatusRecord{}
	for cur.Next(ctx) {
		var r model.StatusRecord
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode timeline record: %w", err)
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}
	return out, nil
}

// RecordFromEvent converts a broker event into a timeline entry.
func RecordFromEvent(e model.OrderEvent) model.StatusRecord {
	sellers := make([]string, 0, len(e.SellerIDs))
	for _, id := range e.SellerIDs {
		sellers = append(sellers, id.String())
	}
	return model.StatusRecord{
		EventID:   e.ID.String(),
		OrderID:   e.OrderID.String(),
		SellerIDs: sellers,
		Event:     e.Type,
		Status:    e.Status,
		ActorID:   e.ActorID.String(),
		Timestamp: e.OccurredAt,
	}
}
