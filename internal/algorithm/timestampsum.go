package algorithm

import (
	"github.com/yiyuanduobao/duobao/internal/model"
)

// TimestampSumName 默认开奖算法的机器名
const TimestampSumName = "timestamp-sum"

// TimestampSum 时间戳求和算法:
//
//	S = 期次内所有购买时间戳（毫秒）之和
//	中奖号码 = (S / N) mod N + 1，N 为参与开奖的份额数（售罄时即总份数）
//
// 随机性来自全体买家的下单时刻，任何单个买家都无法单方面决定结果。
// 除法为整数除法，这是对外公示的公式的一部分，不能改成浮点。
type TimestampSum struct{}

func NewTimestampSum() *TimestampSum {
	return &TimestampSum{}
}

func (a *TimestampSum) Name() string {
	return TimestampSumName
}

func (a *TimestampSum) Compute(snapshot *model.RoundSnapshot) (int, model.DrawInputs, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return 0, model.DrawInputs{}, err
	}

	var sum int64
	for i := range snapshot.Tickets {
		sum += snapshot.Tickets[i].TimestampInt()
	}

	n := int64(len(snapshot.Tickets))
	number := int((sum/n)%n) + 1

	inputs := model.DrawInputs{
		TimestampSum: sum,
		ShareCount:   len(snapshot.Tickets),
	}

	if err := checkRange(a.Name(), number, len(snapshot.Tickets)); err != nil {
		return 0, inputs, err
	}
	return number, inputs, nil
}

func (a *TimestampSum) Meta() model.DrawAlgorithm {
	return model.DrawAlgorithm{
		Name:        TimestampSumName,
		DisplayName: "时间戳求和",
		Description: "对期次内全部购买时间戳（毫秒）求和，整除参与份数后再取模，加一得到中奖号码",
		Formula:     "(S / N) mod N + 1",
		Active:      true,
		IsDefault:   true,
	}
}
