package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flicky/marketplace-api/internal/model"
)

func TestRecordFromEvent(t *testing.T) {
	e := model.OrderEvent{
		ID: uuid.New(), Type: model.EventOrderConfirmed, OrderID: uuid.New(), ActorID: uuid.New(),
		SellerIDs: []uuid.UUID{uuid.New(), uuid.New()}, Status: model.OrderStatusPending,
		OccurredAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	r := RecordFromEvent(e)
	assert.Equal(t, e.ID.String(), r.EventID)
	assert.Equal(t, e.OrderID.String(), r.OrderID)
	assert.Equal(t, []string{e.SellerIDs[0].String(), e.SellerIDs[1].String()}, r.SellerIDs)
	assert.Equal(t, model.EventOrderConfirmed, r.Event)
	assert.Equal(t, model.OrderStatusPending, r.Status)
	assert.Equal(t, e.OccurredAt, r.Timestamp)
}

func TestTimelineStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	db := client.Database("marketplace_audit_test")
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store := NewTimelineStore(db)
	require.NoError(t, store.EnsureIndexes(ctx))

	orderID := uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)
	placed := RecordFromEvent(model.OrderEvent{ID: uuid.New(), Type: model.EventOrderPlaced, OrderID: orderID, Status: model.OrderStatusPending, OccurredAt: base})
	confirmed := RecordFromEvent(model.OrderEvent{ID: uuid.New(), Type: model.EventOrderConfirmed, OrderID: orderID, Status: model.OrderStatusConfirmed, OccurredAt: base.Add(time.Second)})

	require.NoError(t, store.Append(ctx, confirmed))
	require.NoError(t, store.Append(ctx, placed))
	require.NoError(t, store.Append(ctx, placed))

	records, err := store.Timeline(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.EventOrderPlaced, records[0].Event)
	assert.Equal(t, model.EventOrderConfirmed, records[1].Event)

	empty, err := store.Timeline(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
