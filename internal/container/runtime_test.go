package container

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventsadapter "github.com/akriventsev/ordersaga/framework/adapters/events"
	"github.com/akriventsev/ordersaga/framework/adapters/messagebus"
	"github.com/akriventsev/ordersaga/framework/transport"
	"github.com/akriventsev/ordersaga/internal/billing/domain"
)

func TestNewEventBus_WithoutMessageBus(t *testing.T) {
	bus, err := NewEventBus(nil, "ordersaga", nil)
	require.NoError(t, err)

	op := &domain.Operation{UserID: 1, Operation: domain.OperationDeposit, Amount: decimal.RequireFromString("5"), NewBalance: decimal.RequireFromString("5")}
	assert.NoError(t, bus.Publish(context.Background(), domain.NewAccountEvent(op)))
}

func TestNewEventBus_ForwardsToMessageBus(t *testing.T) {
	ctx := context.Background()
	mb := messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig())
	require.NoError(t, mb.Start(ctx))
	defer mb.Stop(ctx)

	var received []*transport.Message
	require.NoError(t, mb.Subscribe(ctx, "ordersaga.account.>", func(ctx context.Context, msg *transport.Message) error {
		received = append(received, msg)
		return nil
	}))

	bus, err := NewEventBus(mb, "ordersaga", nil)
	require.NoError(t, err)

	op := &domain.Operation{
		UserID:     7,
		Operation:  domain.OperationWithdraw,
		Amount:     decimal.RequireFromString("50"),
		NewBalance: decimal.RequireFromString("25.5"),
	}
	require.NoError(t, bus.Publish(ctx, domain.NewAccountEvent(op)))

	require.Len(t, received, 1)
	assert.Equal(t, "ordersaga.account.account.withdrawn", received[0].Subject)

	var envelope eventsadapter.Envelope
	require.NoError(t, json.Unmarshal(received[0].Data, &envelope))
	assert.Equal(t, domain.EventFundsWithdrawn, envelope.EventType)
	assert.Equal(t, "7", envelope.AggregateID)

	var payload struct {
		Amount     string `json:"amount"`
		NewBalance string `json:"new_balance"`
	}
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, "50.00", payload.Amount)
	assert.Equal(t, "25.50", payload.NewBalance)
}
