package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseCapAllows(t *testing.T) {
	unlimited := UnlimitedCap()
	assert.True(t, unlimited.Allows(0, 1000000))
	assert.True(t, unlimited.Allows(999, 1))

	capped := CapOf(5)
	assert.True(t, capped.Allows(0, 5))
	assert.True(t, capped.Allows(4, 1))
	assert.False(t, capped.Allows(4, 2))
	assert.False(t, capped.Allows(5, 1))
}

func TestRoundStatusTerminal(t *testing.T) {
	assert.False(t, RoundStatusPending.Terminal())
	assert.False(t, RoundStatusActive.Terminal())
	assert.True(t, RoundStatusDrawn.Terminal())
	assert.True(t, RoundStatusCancelled.Terminal())
}

func TestRoundRemaining(t *testing.T) {
	r := Round{TotalShares: 10, SoldShares: 3}
	assert.Equal(t, 7, r.Remaining())
}

func TestTicketTimestampInt(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 123_000_000, time.UTC)
	ticket := Ticket{CreatedAt: at}
	assert.Equal(t, at.UnixMilli(), ticket.TimestampInt())
}
