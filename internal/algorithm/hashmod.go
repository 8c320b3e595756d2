package algorithm

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/yiyuanduobao/duobao/internal/model"
)

// HashModName 备选开奖算法的机器名
const HashModName = "hash-mod"

// HashMod 哈希取模算法: 把期次编号与按编号排序的全部凭证
// (编号, 时间戳) 序列喂给 SHA-256，取摘要前 8 字节作为无符号整数，
// 对参与份数取模后加一。与时间戳求和算法一样是纯确定性计算，
// 但对单个时间戳的微小变化更敏感。
type HashMod struct{}

func NewHashMod() *HashMod {
	return &HashMod{}
}

func (a *HashMod) Name() string {
	return HashModName
}

func (a *HashMod) Compute(snapshot *model.RoundSnapshot) (int, model.DrawInputs, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return 0, model.DrawInputs{}, err
	}

	// 按份额编号排序，保证快照序不影响结果
	tickets := make([]model.Ticket, len(snapshot.Tickets))
	copy(tickets, snapshot.Tickets)
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Number < tickets[j].Number })

	h := sha256.New()
	h.Write([]byte(snapshot.PeriodCode))
	var buf [8]byte
	var sum int64
	for i := range tickets {
		binary.BigEndian.PutUint64(buf[:], uint64(tickets[i].Number))
		h.Write(buf[:])
		ts := tickets[i].TimestampInt()
		binary.BigEndian.PutUint64(buf[:], uint64(ts))
		h.Write(buf[:])
		sum += ts
	}

	digest := h.Sum(nil)
	value := binary.BigEndian.Uint64(digest[:8])
	number := int(value%uint64(len(tickets))) + 1

	inputs := model.DrawInputs{
		TimestampSum: sum,
		ShareCount:   len(tickets),
	}

	if err := checkRange(a.Name(), number, len(tickets)); err != nil {
		return 0, inputs, err
	}
	return number, inputs, nil
}

func (a *HashMod) Meta() model.DrawAlgorithm {
	return model.DrawAlgorithm{
		Name:        HashModName,
		DisplayName: "哈希取模",
		Description: "将期次编号与全部 (编号, 时间戳) 序列做 SHA-256，摘要前 8 字节对参与份数取模加一",
		Formula:     "uint64(sha256(code || tickets)[0:8]) mod N + 1",
		Active:      true,
		IsDefault:   false,
	}
}
