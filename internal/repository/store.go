package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yiyuanduobao/duobao/internal/model"
)

// 持久层可判定的错误。购买路径上的校验/容量错误由此包产生，
// 上层（ledger/lifecycle）原样透传或包装，不得吞掉。
var (
	ErrRoundNotFound        = errors.New("期次不存在")
	ErrRoundNotActive       = errors.New("期次不在售卖中")
	ErrCapacityExceeded     = errors.New("剩余份额不足")
	ErrPerUserLimitExceeded = errors.New("超出每用户限购份数")
	ErrDuplicatePeriodCode  = errors.New("期次编号已存在")
	ErrAlgorithmNotFound    = errors.New("开奖算法不存在")
	ErrAlgorithmInactive    = errors.New("开奖算法未启用")
	ErrDrawResultNotFound   = errors.New("开奖结果不存在")
)

// PurchaseResult 一次购买的结果
type PurchaseResult struct {
	Tickets []model.Ticket
	// SoldOut 本次购买是否使期次恰好售罄
	SoldOut bool
	// DrawScheduledAt 售罄时在同一事务内写入的计划开奖时间
	DrawScheduledAt time.Time
}

// Store 持久层接口。实现必须保证各写操作的原子性语义：
// PurchaseTickets 与 CreateDrawResult 是引擎仅有的两处热点写，
// 前者按期次串行化（行锁/互斥），后者以终态检查保证至多一次。
type Store interface {
	// 期次
	CreateRound(ctx context.Context, round *model.Round) (*model.Round, error)
	GetRound(ctx context.Context, periodCode string) (*model.Round, error)
	GetRoundByID(ctx context.Context, id int64) (*model.Round, error)
	ListRoundsByStatus(ctx context.Context, status model.RoundStatus, limit int) ([]*model.Round, error)
	// ActivateDueRounds 将到达开售时间的 PENDING 期次置为 ACTIVE，返回变更条数
	ActivateDueRounds(ctx context.Context, now time.Time) (int64, error)
	// CancelRound 条件更新 PENDING/ACTIVE -> CANCELLED，返回是否发生变更
	CancelRound(ctx context.Context, roundID int64) (bool, error)
	// ListDueDraws 返回计划开奖时间已到且仍处于 ACTIVE 的期次
	ListDueDraws(ctx context.Context, now time.Time) ([]*model.Round, error)

	// 份额。整个预检+扣减+编号分配必须原子，本次请求要么全部成交要么全部失败。
	PurchaseTickets(ctx context.Context, periodCode string, userID int64, quantity int, sellOutDelay time.Duration) (*PurchaseResult, error)
	ListTickets(ctx context.Context, roundID int64) ([]model.Ticket, error)
	ListUserTickets(ctx context.Context, roundID, userID int64) ([]model.Ticket, error)

	// 开奖结果。写入以 status=ACTIVE 为前置条件，竞态失败方返回 false 而非错误。
	CreateDrawResult(ctx context.Context, result *model.DrawResult) (bool, error)
	GetDrawResult(ctx context.Context, roundID int64) (*model.DrawResult, error)

	// 算法配置
	ListAlgorithms(ctx context.Context) ([]model.DrawAlgorithm, error)
	GetDefaultAlgorithm(ctx context.Context) (*model.DrawAlgorithm, error)
	SetDefaultAlgorithm(ctx context.Context, name string) error
	SetAlgorithmActive(ctx context.Context, name string, active bool) error
	// UpsertAlgorithm 注册/更新算法元数据（服务启动时登记内置算法）
	UpsertAlgorithm(ctx context.Context, algo *model.DrawAlgorithm) error

	// 交割。以期次为幂等键，重复投递返回 false。
	RecordFulfillment(ctx context.Context, event *model.FulfillmentEvent) (bool, error)

	Close()
}
