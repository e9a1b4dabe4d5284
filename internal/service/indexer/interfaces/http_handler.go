// internal/service/indexer/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/pkg/ws"
	"chowfast/internal/service/indexer/application"
	"chowfast/internal/service/indexer/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ViewHandler 提供订单视图的查询接口与实时推送
type ViewHandler struct {
	projector *application.Projector
	hub       *ws.Hub
}

func NewViewHandler(projector *application.Projector, hub *ws.Hub) *ViewHandler {
	return &ViewHandler{projector: projector, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ViewHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /views/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /views/buyers/{addr}/orders", h.handleListByBuyer)
	mux.HandleFunc("GET /views/checkpoint", h.handleCheckpoint)
	if h.hub != nil {
		// ?buyer=0x... 只订阅某个买家的订单，不带参数订阅全部（后厨大屏）
		mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
			h.hub.ServeWs(w, r, r.URL.Query().Get("buyer"))
		})
	}
}

func (h *ViewHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "OrderNotFound", "message": "order view not found"})
		return
	}
	view, err := h.projector.Order(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrViewNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "OrderNotFound", "message": err.Error()})
			return
		}
		logger.Ctx(ctx).Error().Err(err).Uint64("order_id", id).Msg("❌ failed to load order view")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "Internal", "message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ViewHandler) handleListByBuyer(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	buyer := strings.ToLower(r.PathValue("addr"))
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "InvalidRequest", "message": "invalid limit"})
			return
		}
		limit = n
	}
	views, err := h.projector.OrdersByBuyer(ctx, buyer, limit)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("buyer", buyer).Msg("❌ failed to list order views")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "Internal", "message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"buyer": buyer, "orders": views})
}

func (h *ViewHandler) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.projector.Checkpoint(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": "Internal", "message": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"checkpoint": cp})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
