// internal/service/ledger/interfaces/http_handler.go
package interfaces

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"chowfast/internal/service/ledger/application"
	"chowfast/internal/service/ledger/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderCaller        = "X-Caller-Address"
	HeaderAttachedValue = "X-Attached-Value"
	HeaderRequestID     = "X-Request-ID"

	maxAuditPage = 500
)

// LedgerHandler 封装了账本服务的 HTTP 处理器
type LedgerHandler struct {
	service *application.LedgerService
}

func NewLedgerHandler(service *application.LedgerService) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *LedgerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /ledger/init", h.wrap(h.handleInit))
	mux.Handle("POST /orders", h.wrap(h.handleCreateOrder))
	mux.Handle("POST /orders/{id}/status", h.wrap(h.handleUpdateStatus))
	mux.Handle("POST /orders/{id}/cancel", h.wrap(h.handleCancel))
	mux.Handle("POST /ledger/withdraw", h.wrap(h.handleWithdraw))
	mux.Handle("POST /ledger/owner", h.wrap(h.handleTransferOwnership))
	mux.Handle("GET /ledger/owner", h.wrap(h.handleOwner))
	mux.Handle("GET /ledger/orders/count", h.wrap(h.handleTotalOrders))
	mux.Handle("GET /ledger/fee", h.wrap(h.handleFee))
	mux.Handle("GET /orders/{id}", h.wrap(h.handleGetOrder))
	mux.Handle("GET /audit", h.wrap(h.handleAudit))
	mux.Handle("POST /accounts/{address}/deposit", h.wrap(h.handleDeposit))
	mux.Handle("GET /accounts/{address}", h.wrap(h.handleBalance))
}

// wrap 提取上游追踪上下文并分配请求 ID
func (h *LedgerHandler) wrap(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		fn(w, r.WithContext(ctx))
	})
}

// callFrom 从请求头读取调用者身份与附带金额
func callFrom(r *http.Request) (application.Call, error) {
	caller, err := domain.ParseAddress(r.Header.Get(HeaderCaller))
	if err != nil {
		return application.Call{}, err
	}
	call := application.Call{Caller: caller}
	if v := strings.TrimSpace(r.Header.Get(HeaderAttachedValue)); v != "" {
		call.Value, err = domain.ParseAmount(v)
		if err != nil {
			return application.Call{}, err
		}
	}
	return call, nil
}

// orderIDFrom 把非数字的 id 映射为 0。0 永远不存在，由账本按正常顺序报 NotOwner / OrderNotFound。
func orderIDFrom(r *http.Request) uint64 {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.Error{Code: "InvalidRequest", Class: domain.ClassValidation, Message: "invalid request body: " + err.Error()}
	}
	return nil
}

func (h *LedgerHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	initialized, err := h.service.Init(r.Context(), call)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"initialized": initialized})
}

func (h *LedgerHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req application.CreateOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.service.CreateOrder(r.Context(), call, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *LedgerHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := orderIDFrom(r)
	// status 可以是状态名 "Confirmed"，也可以是序号 2
	var req struct {
		Status json.RawMessage `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// 状态文本交给服务层在管理员校验之后解析
	status, err := h.service.UpdateOrderStatusText(r.Context(), call, id, string(bytes.Trim(req.Status, `"`)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "status": status.String()})
}

func (h *LedgerHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := orderIDFrom(r)
	if err := h.service.CancelOrder(r.Context(), call, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order_id": id, "status": domain.StatusCancelled.String()})
}

func (h *LedgerHandler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := h.service.Withdraw(r.Context(), call)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Amount{"amount": amount})
}

func (h *LedgerHandler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	newOwner, err := h.service.TransferOwnershipText(r.Context(), call, req.NewOwner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": newOwner.String()})
}

func (h *LedgerHandler) handleOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := h.service.Owner(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.String()})
}

func (h *LedgerHandler) handleTotalOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.TotalOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"total_orders": n})
}

func (h *LedgerHandler) handleFee(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]domain.Amount{"fee": h.service.TransactionFee()})
}

func (h *LedgerHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := orderIDFrom(r)
	summary, err := h.service.Order(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *LedgerHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var from uint64
	if v := q.Get("from"); v != "" {
		var err error
		if from, err = strconv.ParseUint(v, 10, 64); err != nil {
			writeError(w, r, &domain.Error{Code: "InvalidRequest", Class: domain.ClassValidation, Message: "invalid from"})
			return
		}
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, &domain.Error{Code: "InvalidRequest", Class: domain.ClassValidation, Message: "invalid limit"})
			return
		}
		limit = min(n, maxAuditPage)
	}
	records, err := h.service.AuditRecords(r.Context(), from, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (h *LedgerHandler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Amount domain.Amount `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := h.service.Deposit(r.Context(), addr, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr.String(), "balance": bal})
}

func (h *LedgerHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	bal, err := h.service.Balance(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr.String(), "balance": bal})
}
