// Package lifecycle 管理期次的状态机:
//
//	PENDING -> ACTIVE -> DRAWN
//	PENDING/ACTIVE -> CANCELLED
//
// DRAWN 与 CANCELLED 为终态。开奖的至多一次语义由两层保证:
// etcd/redis 分布式锁挡住跨实例并发，数据库对 status=ACTIVE 的条件更新做最终仲裁。
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/lock"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/period"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

var (
	// ErrRoundDrawn 已开奖的期次不能取消
	ErrRoundDrawn = errors.New("期次已开奖，不能取消")
	// ErrPeriodCodeExhausted 期次编号重试次数耗尽
	ErrPeriodCodeExhausted = errors.New("期次编号生成重试次数耗尽")
)

// EventPublisher 交割事件出口。生产环境为Kafka生产者。
type EventPublisher interface {
	SendFulfillmentEvent(event *model.FulfillmentEvent) error
}

// Options 控制器参数
type Options struct {
	// SellOutDelay 售罄到开奖之间的等待窗口
	SellOutDelay time.Duration
	// SweepInterval 巡检周期
	SweepInterval time.Duration
	// PeriodRetryCount 期次编号冲突的最大重试次数
	PeriodRetryCount int
	// LockTimeout 开奖锁的持有时长
	LockTimeout time.Duration
}

// Controller 期次生命周期控制器
type Controller struct {
	store     repository.Store
	cache     *repository.RedisRepository
	registry  *algorithm.Registry
	lock      lock.Lock
	publisher EventPublisher
	gen       *period.Generator
	opts      Options

	cron *cron.Cron

	mu     sync.Mutex
	timers map[int64]*time.Timer // 按期次ID记录在途的开奖定时器

	now func() time.Time // 测试可替换
}

// NewController 创建控制器。cache/lock/publisher 均可为 nil（测试或降级运行）。
func NewController(
	store repository.Store,
	cache *repository.RedisRepository,
	registry *algorithm.Registry,
	lk lock.Lock,
	publisher EventPublisher,
	opts Options,
) *Controller {
	if opts.PeriodRetryCount <= 0 {
		opts.PeriodRetryCount = 5
	}
	return &Controller{
		store:     store,
		cache:     cache,
		registry:  registry,
		lock:      lk,
		publisher: publisher,
		gen:       period.NewGenerator(),
		opts:      opts,
		timers:    make(map[int64]*time.Timer),
		now:       time.Now,
	}
}

// CreateRound 创建期次。期次编号由服务端生成，
// 唯一键冲突时重试，超过次数上限则明确失败而不是静默返回旧期次。
func (c *Controller) CreateRound(ctx context.Context, input *model.NewRoundInput) (*model.Round, error) {
	if input.TotalShares <= 0 {
		return nil, fmt.Errorf("总份数必须大于0")
	}
	if input.UnitPrice <= 0 {
		return nil, fmt.Errorf("单份价格必须大于0")
	}
	if !input.EndAt.After(input.StartAt) {
		return nil, fmt.Errorf("结束时间必须晚于开始时间")
	}

	for attempt := 0; attempt < c.opts.PeriodRetryCount; attempt++ {
		code := c.gen.Generate()

		round := &model.Round{
			PeriodCode:  code,
			UnitPrice:   input.UnitPrice,
			Currency:    input.Currency,
			TotalShares: input.TotalShares,
			UserCap:     input.UserCap,
			BuyoutPrice: input.BuyoutPrice,
			StartAt:     input.StartAt,
			EndAt:       input.EndAt,
			Status:      model.RoundStatusPending,
		}

		created, err := c.store.CreateRound(ctx, round)
		if err == nil {
			log.Printf("已创建期次 %s, 总份数=%d, 单价=%d", created.PeriodCode, created.TotalShares, created.UnitPrice)
			return created, nil
		}
		if errors.Is(err, repository.ErrDuplicatePeriodCode) {
			log.Printf("期次编号 %s 冲突，第 %d 次重试", code, attempt+1)
			continue
		}
		return nil, fmt.Errorf("创建期次失败: %w", err)
	}

	return nil, fmt.Errorf("%w（已重试 %d 次）", ErrPeriodCodeExhausted, c.opts.PeriodRetryCount)
}

// OnSoldOut 售罄回调，注册给台账。带去重: 同一期次只挂一个定时器。
func (c *Controller) OnSoldOut(round *model.Round, drawScheduledAt time.Time) {
	c.scheduleDraw(round.ID, round.PeriodCode, drawScheduledAt)
}

func (c *Controller) scheduleDraw(roundID int64, periodCode string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.timers[roundID]; exists {
		return
	}

	delay := at.Sub(c.now())
	if delay < 0 {
		delay = 0
	}

	c.timers[roundID] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, roundID)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := c.Draw(ctx, periodCode, false); err != nil {
			// 开奖失败期次仍为ACTIVE，留给巡检任务重试
			log.Printf("期次 %s 定时开奖失败: %v", periodCode, err)
		}
	})
	log.Printf("期次 %s 已计划于 %s 开奖", periodCode, at.Format(time.RFC3339))
}

func (c *Controller) cancelTimer(roundID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, exists := c.timers[roundID]; exists {
		t.Stop()
		delete(c.timers, roundID)
	}
}

// Draw 对期次开奖。forced 表示运营方提前开奖: 可以发生在售罄等待窗口内，
// 也可以在未售罄时对已售份额开奖（此时模数为已售份数）。
// 并发竞争中落败的一方返回 (nil, nil): 结果已由别人产出，这不是错误。
func (c *Controller) Draw(ctx context.Context, periodCode string, forced bool) (*model.DrawResult, error) {
	if c.lock != nil {
		lockName := lock.DrawLockName(periodCode)
		acquired, err := c.lock.AcquireLock(lockName, c.opts.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("获取开奖锁失败: %w", err)
		}
		if !acquired {
			log.Printf("期次 %s 开奖锁被其他实例持有，放弃本次开奖", periodCode)
			return nil, nil
		}
		defer func() {
			if rerr := c.lock.ReleaseLock(lockName); rerr != nil {
				log.Printf("释放开奖锁失败: %v", rerr)
			}
		}()
	}

	round, err := c.store.GetRound(ctx, periodCode)
	if err != nil {
		return nil, err
	}

	if round.Status.Terminal() {
		// 已被并发开奖或已取消，静默退出
		log.Printf("期次 %s 已处于终态 %s，跳过开奖", periodCode, round.Status)
		return nil, nil
	}
	if round.Status != model.RoundStatusActive {
		return nil, repository.ErrRoundNotActive
	}
	if round.SoldShares < round.TotalShares && !forced {
		// 强制开奖允许提前对已售份额开奖，定时开奖只处理售罄期次
		log.Printf("期次 %s 未售罄（%d/%d），跳过定时开奖", periodCode, round.SoldShares, round.TotalShares)
		return nil, nil
	}

	tickets, err := c.store.ListTickets(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("读取期次 %s 凭证失败: %w", periodCode, err)
	}
	if len(tickets) != round.SoldShares {
		return nil, fmt.Errorf("期次 %s 凭证数 %d 与已售份数 %d 不一致，拒绝开奖", periodCode, len(tickets), round.SoldShares)
	}

	snapshot := &model.RoundSnapshot{
		RoundID:     round.ID,
		PeriodCode:  round.PeriodCode,
		TotalShares: round.TotalShares,
		Tickets:     tickets,
	}

	algo, err := c.registry.Default(ctx)
	if err != nil {
		return nil, err
	}

	number, inputs, err := algo.Compute(snapshot)
	if err != nil {
		return nil, fmt.Errorf("期次 %s 开奖计算失败: %w", periodCode, err)
	}

	winner, err := findTicketByNumber(tickets, number)
	if err != nil {
		return nil, fmt.Errorf("期次 %s: %w", periodCode, err)
	}

	result := &model.DrawResult{
		RoundID:         round.ID,
		PeriodCode:      round.PeriodCode,
		WinningNumber:   number,
		WinningTicketID: winner.ID,
		WinningUserID:   winner.UserID,
		TimestampSum:    inputs.TimestampSum,
		ShareCount:      inputs.ShareCount,
		Algorithm:       algo.Name(),
		Forced:          forced,
		DrawnAt:         c.now(),
	}

	won, err := c.store.CreateDrawResult(ctx, result)
	if err != nil {
		// 持久化失败不改变期次状态，期次保持ACTIVE，由巡检重试
		return nil, fmt.Errorf("期次 %s 持久化开奖结果失败: %w", periodCode, err)
	}
	if !won {
		log.Printf("期次 %s 开奖结果已由并发请求写入，放弃本次结果", periodCode)
		return nil, nil
	}

	log.Printf("期次 %s 开奖完成: 中奖号码=%d, 用户=%d, 算法=%s, 强制=%v",
		periodCode, number, winner.UserID, algo.Name(), forced)

	c.afterTerminal(round)
	c.publishFulfillment(result, winner)

	return result, nil
}

// Cancel 取消期次并触发退款流程。已开奖的期次不可取消。
func (c *Controller) Cancel(ctx context.Context, periodCode string) error {
	round, err := c.store.GetRound(ctx, periodCode)
	if err != nil {
		return err
	}
	if round.Status == model.RoundStatusDrawn {
		return ErrRoundDrawn
	}
	if round.Status == model.RoundStatusCancelled {
		return nil
	}

	changed, err := c.store.CancelRound(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("取消期次 %s 失败: %w", periodCode, err)
	}
	if !changed {
		// 并发开奖赢在前面，取消不再生效
		log.Printf("期次 %s 取消未生效（状态已变更）", periodCode)
		return nil
	}

	log.Printf("期次 %s 已取消, 需退款份数=%d", periodCode, round.SoldShares)
	c.afterTerminal(round)
	return nil
}

// afterTerminal 期次进入终态后的清理: 停掉定时器、失效缓存
func (c *Controller) afterTerminal(round *model.Round) {
	c.cancelTimer(round.ID)
	if c.cache != nil {
		if err := c.cache.InvalidateRound(round.PeriodCode); err != nil {
			log.Printf("期次 %s 失效缓存失败: %v", round.PeriodCode, err)
		}
		if err := c.cache.ClearRemaining(round.PeriodCode); err != nil {
			log.Printf("期次 %s 清理余量失败: %v", round.PeriodCode, err)
		}
	}
}

func (c *Controller) publishFulfillment(result *model.DrawResult, winner *model.Ticket) {
	if c.publisher == nil {
		return
	}
	event := &model.FulfillmentEvent{
		RoundID:      result.RoundID,
		PeriodCode:   result.PeriodCode,
		TicketID:     winner.ID,
		TicketNumber: winner.Number,
		UserID:       winner.UserID,
		DrawnAt:      result.DrawnAt,
	}
	if err := c.publisher.SendFulfillmentEvent(event); err != nil {
		// 开奖结果已落库，事件发送失败只告警，交割侧以落库结果为准可补偿
		log.Printf("期次 %s 发送交割事件失败: %v", result.PeriodCode, err)
	}
}

func findTicketByNumber(tickets []model.Ticket, number int) (*model.Ticket, error) {
	for i := range tickets {
		if tickets[i].Number == number {
			return &tickets[i], nil
		}
	}
	return nil, fmt.Errorf("中奖号码 %d 没有对应凭证，台账已损坏", number)
}

// StartSweeps 启动巡检任务。只应在持有调度主锁的实例上调用。
func (c *Controller) StartSweeps() {
	if c.cron != nil {
		return
	}
	c.cron = cron.New()

	spec := fmt.Sprintf("@every %s", c.opts.SweepInterval)
	if _, err := c.cron.AddFunc(spec, c.sweepActivations); err != nil {
		log.Printf("注册激活巡检失败: %v", err)
	}
	if _, err := c.cron.AddFunc(spec, c.sweepDueDraws); err != nil {
		log.Printf("注册开奖巡检失败: %v", err)
	}
	c.cron.Start()
	log.Printf("状态巡检任务已启动, 周期=%s", c.opts.SweepInterval)
}

// StopSweeps 停止巡检并清理在途定时器
func (c *Controller) StopSweeps() {
	if c.cron != nil {
		c.cron.Stop()
		c.cron = nil
	}
	c.mu.Lock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()
}

// sweepActivations 把到达开售时间的 PENDING 期次置为 ACTIVE，并初始化Redis余量
func (c *Controller) sweepActivations() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := c.store.ActivateDueRounds(ctx, c.now())
	if err != nil {
		log.Printf("激活巡检失败: %v", err)
		return
	}
	if n == 0 {
		return
	}
	log.Printf("激活巡检: %d 个期次进入售卖", n)

	if c.cache == nil {
		return
	}
	// 余量计数只是快速拒绝用，MySQL事务才是超卖的最终防线，
	// 所以这里用DB真值覆盖初始化是安全的
	rounds, err := c.store.ListRoundsByStatus(ctx, model.RoundStatusActive, 100)
	if err != nil {
		log.Printf("激活巡检读取期次列表失败: %v", err)
		return
	}
	for _, r := range rounds {
		if r.SoldShares == 0 {
			if err := c.cache.InitRemainingShares(r.PeriodCode, r.Remaining()); err != nil {
				log.Printf("期次 %s 初始化余量失败: %v", r.PeriodCode, err)
			}
		}
	}
}

// sweepDueDraws 兜底巡检: 捡起因进程崩溃而丢失定时器的到期开奖
func (c *Controller) sweepDueDraws() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	due, err := c.store.ListDueDraws(ctx, c.now())
	if err != nil {
		log.Printf("开奖巡检失败: %v", err)
		return
	}

	for _, round := range due {
		if _, err := c.Draw(ctx, round.PeriodCode, false); err != nil {
			log.Printf("期次 %s 巡检开奖失败: %v", round.PeriodCode, err)
		}
	}
}

// RecoverSchedules 启动时恢复崩溃前挂起的开奖计划
func (c *Controller) RecoverSchedules(ctx context.Context) error {
	rounds, err := c.store.ListRoundsByStatus(ctx, model.RoundStatusActive, 1000)
	if err != nil {
		return fmt.Errorf("恢复开奖计划失败: %w", err)
	}
	recovered := 0
	for _, r := range rounds {
		if r.DrawScheduledAt != nil {
			c.scheduleDraw(r.ID, r.PeriodCode, *r.DrawScheduledAt)
			recovered++
		}
	}
	if recovered > 0 {
		log.Printf("已恢复 %d 个期次的开奖计划", recovered)
	}
	return nil
}

// GetDrawResult 查询开奖结果
func (c *Controller) GetDrawResult(ctx context.Context, periodCode string) (*model.DrawResult, error) {
	round, err := c.store.GetRound(ctx, periodCode)
	if err != nil {
		return nil, err
	}
	return c.store.GetDrawResult(ctx, round.ID)
}
