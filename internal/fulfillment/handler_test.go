package fulfillment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

func TestHandleEventRecordsOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	h := NewHandler(store)

	event := &model.FulfillmentEvent{
		RoundID:      1,
		PeriodCode:   "ROUND001",
		TicketID:     "ticket-1",
		TicketNumber: 7,
		UserID:       42,
		DrawnAt:      time.Now(),
	}

	require.NoError(t, h.HandleEvent(event))
	assert.Equal(t, 1, store.FulfillmentCount())

	// Kafka重复投递同一事件，不会产生第二条登记
	require.NoError(t, h.HandleEvent(event))
	require.NoError(t, h.HandleEvent(event))
	assert.Equal(t, 1, store.FulfillmentCount())
}

func TestHandleEventDifferentRounds(t *testing.T) {
	store := repository.NewMemoryStore()
	h := NewHandler(store)

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, h.HandleEvent(&model.FulfillmentEvent{
			RoundID:    i,
			PeriodCode: "ROUND00" + string(rune('0'+i)),
			TicketID:   "ticket",
			UserID:     i,
			DrawnAt:    time.Now(),
		}))
	}
	assert.Equal(t, 3, store.FulfillmentCount())
}
