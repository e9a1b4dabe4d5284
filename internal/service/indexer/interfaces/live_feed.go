// internal/service/indexer/interfaces/live_feed.go
package interfaces

import (
	"context"
	"encoding/json"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/ws"
	"chowfast/internal/service/indexer/domain"
)

// LiveFeed 把变化后的订单视图推给 WebSocket 订阅者，主题是买家地址
type LiveFeed struct {
	hub *ws.Hub
}

func NewLiveFeed(hub *ws.Hub) *LiveFeed {
	return &LiveFeed{hub: hub}
}

func (f *LiveFeed) Notify(ctx context.Context, view *domain.OrderView) {
	data, err := json.Marshal(view)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("order_id", view.OrderID).Msg("failed to encode live update")
		return
	}
	f.hub.Broadcast(view.Buyer, data)
}
