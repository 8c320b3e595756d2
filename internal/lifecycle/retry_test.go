package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// collidingStore 让前 n 次建期返回编号冲突，模拟期次编号撞库
type collidingStore struct {
	repository.Store
	remaining int
}

func (s *collidingStore) CreateRound(ctx context.Context, round *model.Round) (*model.Round, error) {
	if s.remaining > 0 {
		s.remaining--
		return nil, repository.ErrDuplicatePeriodCode
	}
	return s.Store.CreateRound(ctx, round)
}

func newRetryController(store repository.Store) *Controller {
	registry := algorithm.NewRegistry(repository.NewMemoryStore())
	return NewController(store, nil, registry, nil, nil, Options{
		SellOutDelay: time.Hour, SweepInterval: time.Second, PeriodRetryCount: 5, LockTimeout: time.Second,
	})
}

func validInput() *model.NewRoundInput {
	return &model.NewRoundInput{
		UnitPrice: 100, Currency: "CNY", TotalShares: 10,
		UserCap: model.UnlimitedCap(),
		StartAt: time.Now(), EndAt: time.Now().Add(time.Hour),
	}
}

func TestCreateRoundRetriesOnDuplicateCode(t *testing.T) {
	store := &collidingStore{Store: repository.NewMemoryStore(), remaining: 3}
	controller := newRetryController(store)

	round, err := controller.CreateRound(context.Background(), validInput())
	require.NoError(t, err, "3次冲突在5次重试之内，最终成功")
	assert.NotEmpty(t, round.PeriodCode)
	assert.Equal(t, 0, store.remaining)
}

func TestCreateRoundFailsAfterExhaustedRetries(t *testing.T) {
	store := &collidingStore{Store: repository.NewMemoryStore(), remaining: 100}
	controller := newRetryController(store)

	_, err := controller.CreateRound(context.Background(), validInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPeriodCodeExhausted)
	assert.Equal(t, 95, store.remaining, "恰好重试5次后放弃")
}
