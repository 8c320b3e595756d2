// Package ledger 实现份额台账: 购买、编号分配与售罄判定。
// 数据库是唯一权威，Redis 余量只做快速拒绝，判断不过关也要以库内事务为准。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

var (
	// ErrInvalidQuantity 购买份数必须为正
	ErrInvalidQuantity = errors.New("购买份数必须大于0")
)

// SoldOutFunc 售罄回调。台账保证对同一期次至多调用一次（以事务内的售罄标记为准）。
type SoldOutFunc func(round *model.Round, drawScheduledAt time.Time)

// TicketLedger 份额台账
type TicketLedger struct {
	store        repository.Store
	cache        *repository.RedisRepository
	sellOutDelay time.Duration
	onSoldOut    SoldOutFunc
}

// NewTicketLedger 创建份额台账。cache 可为 nil（测试或降级运行）。
func NewTicketLedger(store repository.Store, cache *repository.RedisRepository, sellOutDelay time.Duration) *TicketLedger {
	return &TicketLedger{
		store:        store,
		cache:        cache,
		sellOutDelay: sellOutDelay,
	}
}

// OnSoldOut 注册售罄回调，必须在开始接受购买请求之前完成
func (l *TicketLedger) OnSoldOut(fn SoldOutFunc) {
	l.onSoldOut = fn
}

// Purchase 购买份额。要么本次请求的全部份数成交并返回连续编号的凭证，
// 要么一份都不成交并返回可判定的错误，不存在部分成交。
func (l *TicketLedger) Purchase(ctx context.Context, req *model.PurchaseRequest) (*model.PurchaseResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if req.PeriodCode == "" {
		return nil, repository.ErrRoundNotFound
	}

	// Redis 余量预检: 明确不足直接拒绝，省掉一次行锁竞争。
	// 余量未知（键不存在/Redis故障）时放行，由数据库事务兜底。
	reserved := false
	if l.cache != nil {
		ok, known, err := l.cache.ReserveRemaining(req.PeriodCode, req.Quantity)
		if err != nil {
			log.Printf("期次 %s Redis余量预检失败，降级为纯DB路径: %v", req.PeriodCode, err)
		} else if known {
			if !ok {
				return nil, repository.ErrCapacityExceeded
			}
			reserved = true
		}
	}

	result, err := l.store.PurchaseTickets(ctx, req.PeriodCode, req.UserID, req.Quantity, l.sellOutDelay)
	if err != nil {
		// 预占过的余量要补偿回去，否则Redis会比真实库存更悲观
		if reserved {
			if rerr := l.cache.ReleaseRemaining(req.PeriodCode, req.Quantity); rerr != nil {
				log.Printf("期次 %s 回补Redis余量失败: %v", req.PeriodCode, rerr)
			}
		}
		return nil, fmt.Errorf("期次 %s 购买失败: %w", req.PeriodCode, err)
	}

	if l.cache != nil {
		if cerr := l.cache.InvalidateRound(req.PeriodCode); cerr != nil {
			log.Printf("期次 %s 购买后失效缓存失败: %v", req.PeriodCode, cerr)
		}
	}

	if result.SoldOut {
		log.Printf("期次 %s 售罄, 计划开奖时间 %s", req.PeriodCode, result.DrawScheduledAt.Format(time.RFC3339))
		if l.cache != nil {
			if cerr := l.cache.ClearRemaining(req.PeriodCode); cerr != nil {
				log.Printf("期次 %s 清理Redis余量失败: %v", req.PeriodCode, cerr)
			}
		}
		if l.onSoldOut != nil {
			round, gerr := l.store.GetRound(ctx, req.PeriodCode)
			if gerr != nil {
				log.Printf("期次 %s 售罄后读取期次信息失败: %v", req.PeriodCode, gerr)
			} else {
				l.onSoldOut(round, result.DrawScheduledAt)
			}
		}
	}

	return &model.PurchaseResponse{
		Success:   true,
		Message:   "购买成功",
		Tickets:   result.Tickets,
		SoldOut:   result.SoldOut,
		Timestamp: time.Now(),
	}, nil
}

// GetRound 查询期次，优先走缓存
func (l *TicketLedger) GetRound(ctx context.Context, periodCode string) (*model.Round, error) {
	if l.cache != nil {
		round, hit, err := l.cache.GetCachedRound(periodCode)
		if err != nil {
			log.Printf("期次 %s 读缓存失败: %v", periodCode, err)
		} else if hit {
			return round, nil
		}
	}

	round, err := l.store.GetRound(ctx, periodCode)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if cerr := l.cache.CacheRound(round); cerr != nil {
			log.Printf("期次 %s 写缓存失败: %v", periodCode, cerr)
		}
	}
	return round, nil
}

// ListUserTickets 查询用户在某期次内持有的全部凭证
func (l *TicketLedger) ListUserTickets(ctx context.Context, periodCode string, userID int64) ([]model.Ticket, error) {
	round, err := l.store.GetRound(ctx, periodCode)
	if err != nil {
		return nil, err
	}
	return l.store.ListUserTickets(ctx, round.ID, userID)
}

// ListRounds 按状态查询期次列表
func (l *TicketLedger) ListRounds(ctx context.Context, status model.RoundStatus, limit int) ([]*model.Round, error) {
	return l.store.ListRoundsByStatus(ctx, status, limit)
}
