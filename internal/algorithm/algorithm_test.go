package algorithm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// snapshotWithTimestamps 用给定的毫秒时间戳构造快照，编号依次为 1..n
func snapshotWithTimestamps(millis ...int64) *model.RoundSnapshot {
	tickets := make([]model.Ticket, len(millis))
	for i, ms := range millis {
		tickets[i] = model.Ticket{
			ID:        "t",
			RoundID:   1,
			UserID:    int64(i + 1),
			Number:    i + 1,
			CreatedAt: time.UnixMilli(ms),
		}
	}
	return &model.RoundSnapshot{
		RoundID:     1,
		PeriodCode:  "TEST0001",
		TotalShares: len(millis),
		Tickets:     tickets,
	}
}

func TestTimestampSumFormula(t *testing.T) {
	algo := NewTimestampSum()

	// 10份，时间戳之和为505: (505 / 10) mod 10 + 1 = 50 mod 10 + 1 = 1
	millis := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 55}
	snapshot := snapshotWithTimestamps(millis...)

	number, inputs, err := algo.Compute(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, number)
	assert.Equal(t, int64(505), inputs.TimestampSum)
	assert.Equal(t, 10, inputs.ShareCount)
}

func TestTimestampSumIntegerDivision(t *testing.T) {
	algo := NewTimestampSum()

	// 和为7、3份: 整数除法 7/3=2, 2 mod 3 + 1 = 3。
	// 浮点除法会得到不同结果，这里锁死整数语义。
	snapshot := snapshotWithTimestamps(1, 2, 4)

	number, _, err := algo.Compute(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 3, number)
}

func TestTimestampSumDeterministic(t *testing.T) {
	algo := NewTimestampSum()
	snapshot := snapshotWithTimestamps(1717243500123, 1717243500456, 1717243501789, 1717243502012, 1717243503345)

	first, inputs1, err := algo.Compute(snapshot)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, inputs2, err := algo.Compute(snapshot)
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Equal(t, inputs1, inputs2)
	}
}

func TestTimestampSumEmptyRound(t *testing.T) {
	algo := NewTimestampSum()

	_, _, err := algo.Compute(&model.RoundSnapshot{PeriodCode: "EMPTY", TotalShares: 0})
	assert.ErrorIs(t, err, ErrEmptyRound)
}

func TestTimestampSumPartialSnapshot(t *testing.T) {
	algo := NewTimestampSum()

	// 提前强制开奖: 10份只售出2份，模数取已售份数2
	// S = 300, (300/2) mod 2 + 1 = 0 + 1 = 1
	snapshot := snapshotWithTimestamps(100, 200)
	snapshot.TotalShares = 5

	number, inputs, err := algo.Compute(snapshot)
	require.NoError(t, err)
	assert.Equal(t, 1, number)
	assert.Equal(t, 2, inputs.ShareCount)
}

func TestTimestampSumOversoldSnapshot(t *testing.T) {
	algo := NewTimestampSum()

	snapshot := snapshotWithTimestamps(100, 200, 300)
	snapshot.TotalShares = 2 // 凭证数超过总份数，数据异常

	_, _, err := algo.Compute(snapshot)
	assert.Error(t, err)
}

func TestTimestampSumRange(t *testing.T) {
	algo := NewTimestampSum()

	// 扫一批不同的和，验证号码始终落在 1..N 内
	for n := 1; n <= 20; n++ {
		millis := make([]int64, n)
		for i := range millis {
			millis[i] = int64(i*997+13) * 1000003
		}
		snapshot := snapshotWithTimestamps(millis...)

		number, _, err := algo.Compute(snapshot)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, number, 1)
		assert.LessOrEqual(t, number, n)
	}
}

func TestHashModDeterministicAndOrderIndependent(t *testing.T) {
	algo := NewHashMod()
	snapshot := snapshotWithTimestamps(1717243500123, 1717243500456, 1717243501789, 1717243502012)

	first, _, err := algo.Compute(snapshot)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 1)
	assert.LessOrEqual(t, first, 4)

	// 打乱快照内凭证顺序，结果不变
	shuffled := *snapshot
	shuffled.Tickets = []model.Ticket{
		snapshot.Tickets[2], snapshot.Tickets[0], snapshot.Tickets[3], snapshot.Tickets[1],
	}
	again, _, err := algo.Compute(&shuffled)
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestHashModEmptyRound(t *testing.T) {
	algo := NewHashMod()
	_, _, err := algo.Compute(&model.RoundSnapshot{PeriodCode: "EMPTY"})
	assert.ErrorIs(t, err, ErrEmptyRound)
}

func TestIntegrityErrorMessage(t *testing.T) {
	err := &IntegrityError{Algorithm: "timestamp-sum", Number: 11, ShareCount: 10}
	assert.Contains(t, err.Error(), "timestamp-sum")

	var ie *IntegrityError
	assert.True(t, errors.As(error(err), &ie))
}

func TestRegistryDefault(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	reg := NewRegistry(store)
	require.NoError(t, reg.SyncBuiltins(ctx))

	algo, err := reg.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, TimestampSumName, algo.Name())
}

func TestRegistrySetDefault(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	reg := NewRegistry(store)
	require.NoError(t, reg.SyncBuiltins(ctx))

	require.NoError(t, reg.SetDefault(ctx, HashModName))

	algo, err := reg.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, HashModName, algo.Name())

	// 切换默认算法不影响历史算法的解析
	old, err := reg.Resolve(TimestampSumName)
	require.NoError(t, err)
	assert.Equal(t, TimestampSumName, old.Name())
}

func TestRegistrySetDefaultUnknown(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	reg := NewRegistry(store)
	require.NoError(t, reg.SyncBuiltins(ctx))

	err := reg.SetDefault(ctx, "no-such-algo")
	assert.ErrorIs(t, err, repository.ErrAlgorithmNotFound)
}

func TestRegistryDeactivateDefaultRejected(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	reg := NewRegistry(store)
	require.NoError(t, reg.SyncBuiltins(ctx))

	// 默认算法不允许停用
	err := reg.SetActive(ctx, TimestampSumName, false)
	assert.Error(t, err)

	// 非默认算法可以停用再启用
	require.NoError(t, reg.SetActive(ctx, HashModName, false))
	require.NoError(t, reg.SetActive(ctx, HashModName, true))
}

func TestRegistryResolveUnknown(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := NewRegistry(store)

	_, err := reg.Resolve("no-such-algo")
	assert.ErrorIs(t, err, repository.ErrAlgorithmNotFound)
}
