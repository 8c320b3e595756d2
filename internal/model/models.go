package model

import (
	"time"
)

// RoundStatus 期次状态
type RoundStatus string

const (
	RoundStatusPending   RoundStatus = "PENDING"   // 未开售
	RoundStatusActive    RoundStatus = "ACTIVE"    // 售卖中
	RoundStatusDrawn     RoundStatus = "DRAWN"     // 已开奖（终态）
	RoundStatusCancelled RoundStatus = "CANCELLED" // 已取消（终态）
)

// Terminal 判断状态是否为终态
func (s RoundStatus) Terminal() bool {
	return s == RoundStatusDrawn || s == RoundStatusCancelled
}

// PurchaseCap 每用户限购份数。
// 用显式的"不限购"标记代替魔法大数，避免溢出类问题。
type PurchaseCap struct {
	Limited bool `json:"limited"`
	Max     int  `json:"max"`
}

// UnlimitedCap 不限购
func UnlimitedCap() PurchaseCap {
	return PurchaseCap{Limited: false}
}

// CapOf 限购 n 份
func CapOf(n int) PurchaseCap {
	return PurchaseCap{Limited: true, Max: n}
}

// Allows 判断已购 owned 份的用户能否再购 want 份
func (c PurchaseCap) Allows(owned, want int) bool {
	if !c.Limited {
		return true
	}
	return owned+want <= c.Max
}

// Round 期次模型
type Round struct {
	ID          int64       `json:"id"`
	PeriodCode  string      `json:"periodCode"` // 期次编号，全局唯一
	UnitPrice   int64       `json:"unitPrice"`  // 单份价格，单位: 分
	Currency    string      `json:"currency"`
	TotalShares int         `json:"totalShares"`
	SoldShares  int         `json:"soldShares"`
	UserCap     PurchaseCap `json:"userCap"`
	// BuyoutPrice 整件一口价，0 表示本期不支持买断。买断不占用份额库存。
	BuyoutPrice int64 `json:"buyoutPrice"`

	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`
	// DrawScheduledAt 售罄后计算出的计划开奖时间，未售罄时为空
	DrawScheduledAt *time.Time `json:"drawScheduledAt,omitempty"`
	// DrawnAt 实际开奖时间，未开奖时为空
	DrawnAt         *time.Time `json:"drawnAt,omitempty"`
	WinningTicketID string     `json:"winningTicketId,omitempty"`

	Status    RoundStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Remaining 剩余可售份数
func (r *Round) Remaining() int {
	return r.TotalShares - r.SoldShares
}

// Ticket 份额凭证。购买时创建，此后不可变。
type Ticket struct {
	ID      string `json:"id"` // uuid
	RoundID int64  `json:"roundId"`
	UserID  int64  `json:"userId"`
	// Number 份额编号，期次内 1..TotalShares 连续且唯一
	Number int `json:"number"`
	// CreatedAt 购买时间，同时是开奖公式的随机性输入，落库后不可更改
	CreatedAt time.Time `json:"createdAt"`
}

// TimestampInt 开奖公式使用的整数时间戳（毫秒）
func (t *Ticket) TimestampInt() int64 {
	return t.CreatedAt.UnixMilli()
}

// RoundSnapshot 开奖/验证时使用的期次快照
type RoundSnapshot struct {
	RoundID     int64    `json:"roundId"`
	PeriodCode  string   `json:"periodCode"`
	TotalShares int      `json:"totalShares"`
	Tickets     []Ticket `json:"tickets"`
}

// DrawInputs 计算中奖号码所用的原始输入，随结果一并持久化。
// ShareCount 是参与计算的份额数，即开奖时刻期次内全部凭证的张数:
// 售罄开奖时等于总份数，提前强制开奖时等于已售份数。
type DrawInputs struct {
	TimestampSum int64 `json:"timestampSum"`
	ShareCount   int   `json:"shareCount"`
}

// DrawResult 开奖结果，每期至多一条，写入后不可变
type DrawResult struct {
	RoundID         int64     `json:"roundId"`
	PeriodCode      string    `json:"periodCode"`
	WinningNumber   int       `json:"winningNumber"`
	WinningTicketID string    `json:"winningTicketId"`
	WinningUserID   int64     `json:"winningUserId"`
	TimestampSum    int64     `json:"timestampSum"`
	ShareCount      int       `json:"shareCount"`
	Algorithm       string    `json:"algorithm"` // 产生本结果的算法机器名
	Forced          bool      `json:"forced"`    // 是否由运营方提前强制开奖
	DrawnAt         time.Time `json:"drawnAt"`
}

// DrawAlgorithm 开奖算法配置实体，由运营方维护
type DrawAlgorithm struct {
	Name        string    `json:"name"` // 机器名，唯一
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Formula     string    `json:"formula"`
	Active      bool      `json:"active"`
	IsDefault   bool      `json:"isDefault"`
	Params      string    `json:"params"` // 算法私有配置, JSON
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FulfillmentEvent 中奖交割事件，经Kafka投递给取货/发货子系统
type FulfillmentEvent struct {
	RoundID      int64     `json:"roundId"`
	PeriodCode   string    `json:"periodCode"`
	TicketID     string    `json:"ticketId"`
	TicketNumber int       `json:"ticketNumber"`
	UserID       int64     `json:"userId"`
	DrawnAt      time.Time `json:"drawnAt"`
}

// VerificationReport 第三方可复核的开奖验证报告
type VerificationReport struct {
	RoundID          int64     `json:"roundId"`
	PeriodCode       string    `json:"periodCode"`
	Algorithm        string    `json:"algorithm"`
	StoredNumber     int       `json:"storedNumber"`
	RecomputedNumber int       `json:"recomputedNumber"`
	StoredSum        int64     `json:"storedSum"`
	RecomputedSum    int64     `json:"recomputedSum"`
	ShareCount       int       `json:"shareCount"`
	Match            bool      `json:"match"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// PurchaseRequest 购买请求
type PurchaseRequest struct {
	PeriodCode string `json:"periodCode"`
	UserID     int64  `json:"userId"`
	Quantity   int    `json:"quantity"`
}

// PurchaseResponse 购买响应
type PurchaseResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Tickets   []Ticket  `json:"tickets"`
	SoldOut   bool      `json:"soldOut"` // 本次购买是否恰好售罄
	Timestamp time.Time `json:"timestamp"`
}

// NewRoundInput 运营侧创建期次的参数
type NewRoundInput struct {
	UnitPrice   int64       `json:"unitPrice"`
	Currency    string      `json:"currency"`
	TotalShares int         `json:"totalShares"`
	UserCap     PurchaseCap `json:"userCap"`
	BuyoutPrice int64       `json:"buyoutPrice"`
	StartAt     time.Time   `json:"startAt"`
	EndAt       time.Time   `json:"endAt"`
}
