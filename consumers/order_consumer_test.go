package consumers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"storefront-service/checkout"
	"storefront-service/events"
	"storefront-service/testutil"
)

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
	err     error
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return f.err }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return f.err
}

func TestHandle_OrderPlacedReportsSoldOut(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	last := testutil.SeedProduct(t, db, "last", "150.00", 1)
	plenty := testutil.SeedProduct(t, db, "plenty", "1.00", 50)
	testutil.SeedCartItem(t, db, 1, last, 1)
	testutil.SeedCartItem(t, db, 1, plenty, 1)

	rec := &testutil.Recorder{}
	svc := checkout.NewService(db, checkout.DefaultPolicy(), rec, zap.NewNop())
	_, err := svc.PlaceOrder(ctx, 1, checkout.PlaceOrderInput{
		ShippingAddress: "1 Main St", PaymentMethod: "card", Total: testutil.MoneyOf(t, "151.00"),
	})
	require.NoError(t, err)
	placed := rec.Events()
	require.Len(t, placed, 1)

	core, logs := observer.New(zap.WarnLevel)
	h := NewHandler(db, zap.New(core))
	require.NoError(t, h.Handle(ctx, placed[0]))

	warnings := logs.FilterMessage("Product sold out").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "last", warnings[0].ContextMap()["name"])
}

func TestHandle_UnknownType(t *testing.T) {
	h := NewHandler(testutil.NewDB(t), zap.NewNop())

	err := h.Handle(context.Background(), events.New("order.teleported", 1))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestProcess_AckAndNack(t *testing.T) {
	h := NewHandler(testutil.NewDB(t), zap.NewNop())
	ctx := context.Background()

	merged, err := events.New(events.TypeCartMerged, 1).Marshal()
	require.NoError(t, err)
	unknown, err := events.New("order.teleported", 1).Marshal()
	require.NoError(t, err)

	ack := &fakeAck{}
	process(ctx, h, zap.NewNop(), merged, false, ack)
	assert.True(t, ack.acked)

	ack = &fakeAck{}
	process(ctx, h, zap.NewNop(), []byte("12|created"), false, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)

	ack = &fakeAck{}
	process(ctx, h, zap.NewNop(), unknown, false, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestProcess_RequeuesTransientFailureOnce(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewHandler(db, zap.NewNop())
	require.NoError(t, db.Close())

	e := events.New(events.TypeOrderPlaced, 1)
	e.OrderID = 1
	body, err := e.Marshal()
	require.NoError(t, err)

	ack := &fakeAck{}
	process(context.Background(), h, zap.NewNop(), body, false, ack)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)

	ack = &fakeAck{}
	process(context.Background(), h, zap.NewNop(), body, true, ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestProcess_LogsSettlementFailures(t *testing.T) {
	h := NewHandler(testutil.NewDB(t), zap.NewNop())
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	closed := errors.New("channel/connection is not open")

	merged, err := events.New(events.TypeCartMerged, 1).Marshal()
	require.NoError(t, err)

	process(context.Background(), h, logger, merged, false, &fakeAck{err: closed})
	process(context.Background(), h, logger, []byte("garbage"), false, &fakeAck{err: closed})

	require.Equal(t, 1, logs.FilterMessage("Failed to ack message").Len())
	nacks := logs.FilterMessage("Failed to nack message").All()
	require.Len(t, nacks, 1)
	assert.Equal(t, false, nacks[0].ContextMap()["requeue"])
}
