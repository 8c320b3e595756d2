package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/ledger"
	"github.com/yiyuanduobao/duobao/internal/lifecycle"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// drawnRound 建期、买空并开奖，返回期次与开奖结果
func drawnRound(t *testing.T, store *repository.MemoryStore, registry *algorithm.Registry) (*model.Round, *model.DrawResult) {
	t.Helper()
	ctx := context.Background()

	controller := lifecycle.NewController(store, nil, registry, nil, nil, lifecycle.Options{
		SellOutDelay: time.Hour, SweepInterval: time.Second, PeriodRetryCount: 5, LockTimeout: time.Second,
	})
	lg := ledger.NewTicketLedger(store, nil, time.Hour)

	round, err := controller.CreateRound(ctx, &model.NewRoundInput{
		UnitPrice: 100, Currency: "CNY", TotalShares: 8,
		UserCap: model.UnlimitedCap(),
		StartAt: time.Now().Add(-time.Minute), EndAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = store.ActivateDueRounds(ctx, time.Now())
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := lg.Purchase(ctx, &model.PurchaseRequest{
			PeriodCode: round.PeriodCode, UserID: int64(i + 1), Quantity: 1,
		})
		require.NoError(t, err)
	}

	result, err := controller.Draw(ctx, round.PeriodCode, false)
	require.NoError(t, err)
	require.NotNil(t, result)
	return round, result
}

func TestVerifyMatches(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := algorithm.NewRegistry(store)
	require.NoError(t, registry.SyncBuiltins(ctx))

	round, result := drawnRound(t, store, registry)

	v := NewVerifier(store, registry)
	report, err := v.Verify(ctx, round.PeriodCode)
	require.NoError(t, err)

	assert.True(t, report.Match)
	assert.Equal(t, result.WinningNumber, report.StoredNumber)
	assert.Equal(t, result.WinningNumber, report.RecomputedNumber)
	assert.Equal(t, result.TimestampSum, report.RecomputedSum)
	assert.Equal(t, result.Algorithm, report.Algorithm)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := algorithm.NewRegistry(store)
	require.NoError(t, registry.SyncBuiltins(ctx))

	round, result := drawnRound(t, store, registry)

	// 篡改落库的中奖号码
	tampered := result.WinningNumber%8 + 1
	store.TamperDrawResult(round.ID, tampered)

	v := NewVerifier(store, registry)
	report, err := v.Verify(ctx, round.PeriodCode)
	require.NoError(t, err)

	assert.False(t, report.Match)
	assert.Equal(t, tampered, report.StoredNumber)
	assert.Equal(t, result.WinningNumber, report.RecomputedNumber)
}

func TestVerifySurvivesAlgorithmSwitch(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := algorithm.NewRegistry(store)
	require.NoError(t, registry.SyncBuiltins(ctx))

	round, _ := drawnRound(t, store, registry)

	// 开奖后切换默认算法，历史结果仍按原算法复核
	require.NoError(t, registry.SetDefault(ctx, algorithm.HashModName))

	v := NewVerifier(store, registry)
	report, err := v.Verify(ctx, round.PeriodCode)
	require.NoError(t, err)
	assert.True(t, report.Match)
	assert.Equal(t, algorithm.TimestampSumName, report.Algorithm)
}

func TestVerifyUndrawnRound(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := algorithm.NewRegistry(store)
	require.NoError(t, registry.SyncBuiltins(ctx))

	round, err := store.CreateRound(ctx, &model.Round{
		PeriodCode: "PENDING01", UnitPrice: 100, TotalShares: 5,
		StartAt: time.Now(), EndAt: time.Now().Add(time.Hour),
		Status: model.RoundStatusPending,
	})
	require.NoError(t, err)

	v := NewVerifier(store, registry)
	_, err = v.Verify(ctx, round.PeriodCode)
	assert.Error(t, err)
}

func TestVerifyUnknownRound(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	registry := algorithm.NewRegistry(store)

	v := NewVerifier(store, registry)
	_, err := v.Verify(ctx, "NOPE")
	assert.ErrorIs(t, err, repository.ErrRoundNotFound)
}
