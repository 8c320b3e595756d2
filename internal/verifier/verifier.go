// Package verifier 从第一性原理复核开奖结果:
// 重新读取凭证时间戳，用结果中记录的算法重算中奖号码，与落库结果比对。
package verifier

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yiyuanduobao/duobao/internal/algorithm"
	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// Verifier 开奖结果复核器
type Verifier struct {
	store    repository.Store
	registry *algorithm.Registry
}

// NewVerifier 创建复核器
func NewVerifier(store repository.Store, registry *algorithm.Registry) *Verifier {
	return &Verifier{store: store, registry: registry}
}

// Verify 复核某期次的开奖结果。复算使用结果中记录的算法名，
// 与当前默认算法无关: 算法切换不影响历史结果的可复核性。
func (v *Verifier) Verify(ctx context.Context, periodCode string) (*model.VerificationReport, error) {
	round, err := v.store.GetRound(ctx, periodCode)
	if err != nil {
		return nil, err
	}
	if round.Status != model.RoundStatusDrawn {
		return nil, fmt.Errorf("期次 %s 尚未开奖，无法复核", periodCode)
	}

	stored, err := v.store.GetDrawResult(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	algo, err := v.registry.Resolve(stored.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("期次 %s 复核失败: %w", periodCode, err)
	}

	tickets, err := v.store.ListTickets(ctx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("期次 %s 读取凭证失败: %w", periodCode, err)
	}

	snapshot := &model.RoundSnapshot{
		RoundID:     round.ID,
		PeriodCode:  round.PeriodCode,
		TotalShares: round.TotalShares,
		Tickets:     tickets,
	}

	recomputed, inputs, err := algo.Compute(snapshot)
	if err != nil {
		return nil, fmt.Errorf("期次 %s 复算失败: %w", periodCode, err)
	}

	report := &model.VerificationReport{
		RoundID:          round.ID,
		PeriodCode:       round.PeriodCode,
		Algorithm:        stored.Algorithm,
		StoredNumber:     stored.WinningNumber,
		RecomputedNumber: recomputed,
		StoredSum:        stored.TimestampSum,
		RecomputedSum:    inputs.TimestampSum,
		ShareCount:       inputs.ShareCount,
		Match: recomputed == stored.WinningNumber &&
			inputs.TimestampSum == stored.TimestampSum &&
			inputs.ShareCount == stored.ShareCount,
		CheckedAt:        time.Now(),
	}

	if !report.Match {
		// 复算不一致意味着数据被篡改或算法实现被改动，必须大声告警
		log.Printf("严重: 期次 %s 开奖复核不一致! 落库号码=%d 复算号码=%d 落库和=%d 复算和=%d",
			periodCode, stored.WinningNumber, recomputed, stored.TimestampSum, inputs.TimestampSum)
	}

	return report, nil
}
