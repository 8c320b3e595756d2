package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

func newActiveRound(t *testing.T, store *repository.MemoryStore, totalShares int, userCap model.PurchaseCap) *model.Round {
	t.Helper()
	ctx := context.Background()

	round, err := store.CreateRound(ctx, &model.Round{
		PeriodCode:  "P" + t.Name(),
		UnitPrice:   100,
		Currency:    "CNY",
		TotalShares: totalShares,
		UserCap:     userCap,
		StartAt:     time.Now().Add(-time.Minute),
		EndAt:       time.Now().Add(time.Hour),
		Status:      model.RoundStatusPending,
	})
	require.NoError(t, err)

	_, err = store.ActivateDueRounds(ctx, time.Now())
	require.NoError(t, err)

	round, err = store.GetRound(ctx, round.PeriodCode)
	require.NoError(t, err)
	require.Equal(t, model.RoundStatusActive, round.Status)
	return round
}

func TestPurchaseAllocatesSequentialNumbers(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 10, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	resp, err := lg.Purchase(ctx, &model.PurchaseRequest{
		PeriodCode: round.PeriodCode, UserID: 1, Quantity: 3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Tickets, 3)
	assert.False(t, resp.SoldOut)

	for i, ticket := range resp.Tickets {
		assert.Equal(t, i+1, ticket.Number)
		assert.NotEmpty(t, ticket.ID)
		assert.Equal(t, int64(1), ticket.UserID)
	}

	// 第二个买家接着上一个编号继续
	resp2, err := lg.Purchase(ctx, &model.PurchaseRequest{
		PeriodCode: round.PeriodCode, UserID: 2, Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, resp2.Tickets[0].Number)
	assert.Equal(t, 5, resp2.Tickets[1].Number)
}

func TestPurchaseInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 10, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: -5})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPurchaseRoundNotFound(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: "NOPE", UserID: 1, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrRoundNotFound)
}

func TestPurchaseRejectsNonActiveRound(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	// 未开售的期次不能购买
	round, err := store.CreateRound(ctx, &model.Round{
		PeriodCode:  "PENDING01",
		UnitPrice:   100,
		TotalShares: 10,
		UserCap:     model.UnlimitedCap(),
		StartAt:     time.Now().Add(time.Hour),
		EndAt:       time.Now().Add(2 * time.Hour),
		Status:      model.RoundStatusPending,
	})
	require.NoError(t, err)

	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrRoundNotActive)

	// 已取消的期次同样拒绝
	changed, err := store.CancelRound(ctx, round.ID)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrRoundNotActive)
}

func TestPurchaseAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 5, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 3})
	require.NoError(t, err)

	// 只剩2份，请求3份必须整单失败而不是部分成交
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 2, Quantity: 3})
	assert.ErrorIs(t, err, repository.ErrCapacityExceeded)

	got, err := store.GetRound(ctx, round.PeriodCode)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SoldShares)

	tickets, err := store.ListTickets(ctx, round.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, 3)
}

func TestPurchasePerUserCap(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 10, model.CapOf(3))

	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 2})
	require.NoError(t, err)

	// 已持有2份，再买2份会超出限购3份
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 2})
	assert.ErrorIs(t, err, repository.ErrPerUserLimitExceeded)

	// 恰好到上限可以成交
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 1})
	require.NoError(t, err)

	// 其他用户不受影响
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 2, Quantity: 3})
	require.NoError(t, err)
}

func TestPurchaseUnlimitedCap(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 100, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	// 不限购时单个用户可以买下整期
	resp, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 100})
	require.NoError(t, err)
	assert.Len(t, resp.Tickets, 100)
	assert.True(t, resp.SoldOut)
}

func TestPurchaseSoldOutNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 4, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 90*time.Second)

	var mu sync.Mutex
	notified := 0
	var schedAt time.Time
	lg.OnSoldOut(func(r *model.Round, at time.Time) {
		mu.Lock()
		defer mu.Unlock()
		notified++
		schedAt = at
	})

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 2})
	require.NoError(t, err)

	before := time.Now()
	resp, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 2, Quantity: 2})
	require.NoError(t, err)
	assert.True(t, resp.SoldOut)

	mu.Lock()
	assert.Equal(t, 1, notified, "售罄回调只触发一次")
	// 计划开奖时间 = 售罄时刻 + 等待窗口
	assert.WithinDuration(t, before.Add(90*time.Second), schedAt, 5*time.Second)
	mu.Unlock()

	// 售罄后继续购买直接失败，不再触发回调
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 3, Quantity: 1})
	assert.ErrorIs(t, err, repository.ErrCapacityExceeded)

	mu.Lock()
	assert.Equal(t, 1, notified)
	mu.Unlock()
}

func TestPurchaseConcurrentNoOversell(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 50, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	const workers = 20
	const perWorker = 5 // 共请求100份，只有50份能成交

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := lg.Purchase(ctx, &model.PurchaseRequest{
				PeriodCode: round.PeriodCode, UserID: userID, Quantity: perWorker,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(int64(w + 1))
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded, "恰好10个请求成交")

	got, err := store.GetRound(ctx, round.PeriodCode)
	require.NoError(t, err)
	assert.Equal(t, 50, got.SoldShares, "不超卖")

	// 编号 1..50 连续且无重复
	tickets, err := store.ListTickets(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 50)
	seen := make(map[int]bool)
	for _, ticket := range tickets {
		assert.GreaterOrEqual(t, ticket.Number, 1)
		assert.LessOrEqual(t, ticket.Number, 50)
		assert.False(t, seen[ticket.Number], "编号 %d 重复", ticket.Number)
		seen[ticket.Number] = true
	}
}

func TestListUserTickets(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	round := newActiveRound(t, store, 10, model.UnlimitedCap())

	lg := NewTicketLedger(store, nil, 180*time.Second)

	_, err := lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 1, Quantity: 2})
	require.NoError(t, err)
	_, err = lg.Purchase(ctx, &model.PurchaseRequest{PeriodCode: round.PeriodCode, UserID: 2, Quantity: 3})
	require.NoError(t, err)

	mine, err := lg.ListUserTickets(ctx, round.PeriodCode, 1)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := lg.ListUserTickets(ctx, round.PeriodCode, 2)
	require.NoError(t, err)
	assert.Len(t, theirs, 3)
}
