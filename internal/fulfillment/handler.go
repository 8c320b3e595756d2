// Package fulfillment 消费中奖交割事件并登记发货任务。
// Kafka可能重复投递，落库以期次为幂等键，重复事件直接丢弃。
package fulfillment

import (
	"context"
	"log"
	"time"

	"github.com/yiyuanduobao/duobao/internal/model"
	"github.com/yiyuanduobao/duobao/internal/repository"
)

// Handler 交割事件处理器
type Handler struct {
	store repository.Store
}

// NewHandler 创建处理器
func NewHandler(store repository.Store) *Handler {
	return &Handler{store: store}
}

// HandleEvent 登记一次中奖交割。返回错误表示事件应由消费侧重试。
func (h *Handler) HandleEvent(event *model.FulfillmentEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	recorded, err := h.store.RecordFulfillment(ctx, event)
	if err != nil {
		return err
	}
	if !recorded {
		// 重复投递，已登记过
		log.Printf("期次 %s 交割事件重复投递，忽略", event.PeriodCode)
		return nil
	}

	log.Printf("期次 %s 交割已登记: 用户=%d, 凭证=%s, 号码=%d",
		event.PeriodCode, event.UserID, event.TicketID, event.TicketNumber)
	return nil
}
