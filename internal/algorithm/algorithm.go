// Package algorithm 实现可插拔的开奖算法。
// 开奖算法只依赖期次快照这一份输入，同样的快照必须产出同样的中奖号码，
// 以便任何第三方都能独立复算验证。
package algorithm

import (
	"fmt"

	"github.com/yiyuanduobao/duobao/internal/model"
)

// Algorithm 开奖算法接口。Compute 必须是纯函数: 不读时钟、不读随机源、不访问外部状态。
// 计算的模数 N 取快照内凭证的张数: 售罄开奖时等于总份数，提前强制开奖时等于已售份数，
// 因此中奖号码一定落在已售出的连续号段 1..N 内。
type Algorithm interface {
	// Name 算法机器名，与 draw_algorithms 表中的 name 对应
	Name() string
	// Compute 根据期次快照计算中奖号码（1..快照凭证数）
	Compute(snapshot *model.RoundSnapshot) (int, model.DrawInputs, error)
	// Meta 算法的展示元信息，用于首次启动时注册到存储层
	Meta() model.DrawAlgorithm
}

var (
	// ErrEmptyRound 空期次不能开奖
	ErrEmptyRound = fmt.Errorf("期次内没有已售份额，无法开奖")
)

// IntegrityError 算法产出了超出 1..ShareCount 范围的号码，属于不可恢复的严重错误，
// 必须让本次开奖失败并告警，而不是悄悄修正。
type IntegrityError struct {
	Algorithm  string
	Number     int
	ShareCount int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("算法 %s 计算出越界中奖号码 %d (参与份数 %d)，结果已拒绝", e.Algorithm, e.Number, e.ShareCount)
}

// validateSnapshot 公共的快照校验: 空期次与超卖快照都拒绝计算
func validateSnapshot(snapshot *model.RoundSnapshot) error {
	if snapshot.TotalShares <= 0 || len(snapshot.Tickets) == 0 {
		return ErrEmptyRound
	}
	if len(snapshot.Tickets) > snapshot.TotalShares {
		return fmt.Errorf("期次 %s 快照异常: 持有 %d 张凭证超过总份数 %d",
			snapshot.PeriodCode, len(snapshot.Tickets), snapshot.TotalShares)
	}
	return nil
}

// checkRange 校验号码落在 1..shareCount 内
func checkRange(name string, number int, shareCount int) error {
	if number < 1 || number > shareCount {
		return &IntegrityError{Algorithm: name, Number: number, ShareCount: shareCount}
	}
	return nil
}
