package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yiyuanduobao/duobao/internal/model"
)

// MemoryStore 基于内存的 Store 实现，供测试与本地联调使用。
// 用互斥锁模拟数据库的行锁/条件更新语义。
type MemoryStore struct {
	mu           sync.Mutex
	nextID       int64
	rounds       map[int64]*model.Round
	byCode       map[string]int64
	tickets      map[int64][]model.Ticket
	results      map[int64]*model.DrawResult
	algorithms   map[string]*model.DrawAlgorithm
	fulfillments map[int64]*model.FulfillmentEvent

	// drawResultErr 注入 CreateDrawResult 的失败，用于验证开奖失败后期次保持 ACTIVE
	drawResultErr error
}

// NewMemoryStore 创建内存 Store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rounds:       make(map[int64]*model.Round),
		byCode:       make(map[string]int64),
		tickets:      make(map[int64][]model.Ticket),
		results:      make(map[int64]*model.DrawResult),
		algorithms:   make(map[string]*model.DrawAlgorithm),
		fulfillments: make(map[int64]*model.FulfillmentEvent),
	}
}

// SetDrawResultError 注入下一次 CreateDrawResult 的错误
func (s *MemoryStore) SetDrawResultError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawResultErr = err
}

func (s *MemoryStore) CreateRound(ctx context.Context, round *model.Round) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[round.PeriodCode]; exists {
		return nil, ErrDuplicatePeriodCode
	}

	s.nextID++
	now := time.Now()
	created := *round
	created.ID = s.nextID
	created.SoldShares = 0
	created.CreatedAt = now
	created.UpdatedAt = now

	s.rounds[created.ID] = &created
	s.byCode[created.PeriodCode] = created.ID

	result := created
	return &result, nil
}

func (s *MemoryStore) GetRound(ctx context.Context, periodCode string) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[periodCode]
	if !ok {
		return nil, ErrRoundNotFound
	}
	round := *s.rounds[id]
	return &round, nil
}

func (s *MemoryStore) GetRoundByID(ctx context.Context, id int64) (*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	round := *r
	return &round, nil
}

func (s *MemoryStore) ListRoundsByStatus(ctx context.Context, status model.RoundStatus, limit int) ([]*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rounds []*model.Round
	for _, r := range s.rounds {
		if r.Status == status {
			round := *r
			rounds = append(rounds, &round)
		}
		if len(rounds) == limit {
			break
		}
	}
	return rounds, nil
}

func (s *MemoryStore) ActivateDueRounds(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.rounds {
		if r.Status == model.RoundStatusPending && !r.StartAt.After(now) {
			r.Status = model.RoundStatusActive
			r.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CancelRound(ctx context.Context, roundID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rounds[roundID]
	if !ok {
		return false, nil
	}
	if r.Status != model.RoundStatusPending && r.Status != model.RoundStatusActive {
		return false, nil
	}
	r.Status = model.RoundStatusCancelled
	r.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) ListDueDraws(ctx context.Context, now time.Time) ([]*model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rounds []*model.Round
	for _, r := range s.rounds {
		if r.Status == model.RoundStatusActive && r.DrawScheduledAt != nil && !r.DrawScheduledAt.After(now) {
			round := *r
			rounds = append(rounds, &round)
		}
	}
	return rounds, nil
}

func (s *MemoryStore) PurchaseTickets(ctx context.Context, periodCode string, userID int64, quantity int, sellOutDelay time.Duration) (*PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[periodCode]
	if !ok {
		return nil, ErrRoundNotFound
	}
	r := s.rounds[id]

	if r.Status != model.RoundStatusActive {
		return nil, ErrRoundNotActive
	}
	if quantity > r.TotalShares-r.SoldShares {
		return nil, ErrCapacityExceeded
	}
	if r.UserCap.Limited {
		owned := 0
		for _, t := range s.tickets[id] {
			if t.UserID == userID {
				owned++
			}
		}
		if !r.UserCap.Allows(owned, quantity) {
			return nil, ErrPerUserLimitExceeded
		}
	}

	now := time.Now()
	tickets := make([]model.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		tickets = append(tickets, model.Ticket{
			ID:        uuid.New().String(),
			RoundID:   id,
			UserID:    userID,
			Number:    r.SoldShares + i + 1,
			CreatedAt: now,
		})
	}
	s.tickets[id] = append(s.tickets[id], tickets...)
	r.SoldShares += quantity
	r.UpdatedAt = now

	result := &PurchaseResult{Tickets: tickets}
	if r.SoldShares == r.TotalShares {
		schedAt := now.Add(sellOutDelay)
		r.DrawScheduledAt = &schedAt
		result.SoldOut = true
		result.DrawScheduledAt = schedAt
	}
	return result, nil
}

func (s *MemoryStore) ListTickets(ctx context.Context, roundID int64) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets := make([]model.Ticket, len(s.tickets[roundID]))
	copy(tickets, s.tickets[roundID])
	return tickets, nil
}

func (s *MemoryStore) ListUserTickets(ctx context.Context, roundID, userID int64) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tickets []model.Ticket
	for _, t := range s.tickets[roundID] {
		if t.UserID == userID {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

func (s *MemoryStore) CreateDrawResult(ctx context.Context, result *model.DrawResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drawResultErr != nil {
		err := s.drawResultErr
		s.drawResultErr = nil
		return false, err
	}

	r, ok := s.rounds[result.RoundID]
	if !ok {
		return false, ErrRoundNotFound
	}
	if r.Status != model.RoundStatusActive {
		return false, nil
	}

	r.Status = model.RoundStatusDrawn
	drawnAt := result.DrawnAt
	r.DrawnAt = &drawnAt
	r.WinningTicketID = result.WinningTicketID
	r.UpdatedAt = drawnAt

	stored := *result
	s.results[result.RoundID] = &stored
	return true, nil
}

func (s *MemoryStore) GetDrawResult(ctx context.Context, roundID int64) (*model.DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dr, ok := s.results[roundID]
	if !ok {
		return nil, ErrDrawResultNotFound
	}
	result := *dr
	return &result, nil
}

// TamperDrawResult 篡改已存的开奖结果（仅用于验证 DrawVerifier 的告警路径）
func (s *MemoryStore) TamperDrawResult(roundID int64, winningNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dr, ok := s.results[roundID]; ok {
		dr.WinningNumber = winningNumber
	}
}

func (s *MemoryStore) ListAlgorithms(ctx context.Context) ([]model.DrawAlgorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var algos []model.DrawAlgorithm
	for _, a := range s.algorithms {
		algos = append(algos, *a)
	}
	return algos, nil
}

func (s *MemoryStore) GetDefaultAlgorithm(ctx context.Context) (*model.DrawAlgorithm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.algorithms {
		if a.IsDefault && a.Active {
			algo := *a
			return &algo, nil
		}
	}
	return nil, ErrAlgorithmNotFound
}

func (s *MemoryStore) SetDefaultAlgorithm(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.algorithms[name]
	if !ok {
		return ErrAlgorithmNotFound
	}
	if !target.Active {
		return ErrAlgorithmInactive
	}
	for _, a := range s.algorithms {
		a.IsDefault = false
	}
	target.IsDefault = true
	return nil
}

func (s *MemoryStore) SetAlgorithmActive(ctx context.Context, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.algorithms[name]
	if !ok {
		return ErrAlgorithmNotFound
	}
	if !active && a.IsDefault {
		return ErrAlgorithmInactive
	}
	a.Active = active
	return nil
}

func (s *MemoryStore) UpsertAlgorithm(ctx context.Context, algo *model.DrawAlgorithm) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.algorithms[algo.Name]; ok {
		existing.DisplayName = algo.DisplayName
		existing.Description = algo.Description
		existing.Formula = algo.Formula
		existing.UpdatedAt = time.Now()
		return nil
	}
	stored := *algo
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.algorithms[algo.Name] = &stored
	return nil
}

func (s *MemoryStore) RecordFulfillment(ctx context.Context, event *model.FulfillmentEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.fulfillments[event.RoundID]; exists {
		return false, nil
	}
	stored := *event
	s.fulfillments[event.RoundID] = &stored
	return true, nil
}

// FulfillmentCount 已记录的交割条数（测试断言用）
func (s *MemoryStore) FulfillmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fulfillments)
}

func (s *MemoryStore) Close() {}
