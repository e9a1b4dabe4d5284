package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chowfast/internal/service/ledger/application"
	"chowfast/internal/service/ledger/domain"
	"chowfast/internal/service/ledger/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	custody = "0x00000000000000000000000000000000000c0570"
	owner   = "0x1111111111111111111111111111111111111111"
	alice   = "0x2222222222222222222222222222222222222222"
	bob     = "0x3333333333333333333333333333333333333333"
)

type fixedClock int64

func (c fixedClock) Now() int64 { return int64(c) }

func newServer(t *testing.T) *http.ServeMux {
	t.Helper()
	svc := application.NewLedgerService(
		infrastructure.NewMemoryStore(),
		domain.NewLedger(100, 300),
		fixedClock(1000),
		custody,
		noop.NewTracerProvider().Tracer("test"),
	)
	mux := http.NewServeMux()
	NewLedgerHandler(svc).RegisterRoutes(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, caller, value, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body)).WithContext(context.Background())
	if caller != "" {
		req.Header.Set(HeaderCaller, caller)
	}
	if value != "" {
		req.Header.Set(HeaderAttachedValue, value)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

const createBody = `{"product_ids":["p1"],"product_names":["Dumplings"],"prices":["1000"],"quantities":[1],"subtotal":"1000","delivery_info":"Gate 4"}`

func TestLedgerHandler_OrderLifecycle(t *testing.T) {
	mux := newServer(t)

	rec, out := do(t, mux, "POST", "/ledger/init", owner, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["initialized"])
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))

	rec, _ = do(t, mux, "POST", "/accounts/"+alice+"/deposit", "", "", `{"amount":"5000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, mux, "POST", "/orders", alice, "1500", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), out["order_id"])
	assert.Equal(t, "1100", out["total"])
	assert.Equal(t, "400", out["refunded"])

	rec, out = do(t, mux, "GET", "/orders/1", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Paid", out["status"])
	assert.Equal(t, alice, out["buyer"])
	assert.Equal(t, float64(1300), out["cancel_deadline"])

	rec, out = do(t, mux, "POST", "/orders/1/status", owner, "", `{"status":"Confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Confirmed", out["status"])

	rec, out = do(t, mux, "POST", "/orders/1/status", owner, "", `{"status":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Completed", out["status"])

	rec, out = do(t, mux, "POST", "/orders/1/cancel", alice, "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CanOnlyCancelPaid", out["code"])

	rec, out = do(t, mux, "POST", "/ledger/withdraw", owner, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1100", out["amount"])

	rec, out = do(t, mux, "GET", "/accounts/"+owner, "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1100", out["balance"])

	rec, out = do(t, mux, "GET", "/audit?from=0&limit=10", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, out["records"], 5)

	rec, out = do(t, mux, "GET", "/ledger/orders/count", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["total_orders"])

	rec, out = do(t, mux, "GET", "/ledger/fee", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", out["fee"])
}

func TestLedgerHandler_ErrorMapping(t *testing.T) {
	mux := newServer(t)
	do(t, mux, "POST", "/ledger/init", owner, "", "")
	do(t, mux, "POST", "/accounts/"+alice+"/deposit", "", "", `{"amount":"5000"}`)
	do(t, mux, "POST", "/orders", alice, "1100", createBody)

	tests := []struct {
		name         string
		method, path string
		caller       string
		value        string
		body         string
		wantStatus   int
		wantCode     string
	}{
		{"missing caller", "POST", "/orders/1/cancel", "", "", "", http.StatusBadRequest, "InvalidAddress"},
		{"underpaid", "POST", "/orders", alice, "1099", createBody, http.StatusPaymentRequired, "InsufficientPayment"},
		{"wallet empty", "POST", "/orders", bob, "1100", createBody, http.StatusBadGateway, "InsufficientFunds"},
		{"not owner", "POST", "/orders/1/status", bob, "", `{"status":"Confirmed"}`, http.StatusForbidden, "NotOwner"},
		{"not buyer", "POST", "/orders/1/cancel", bob, "", "", http.StatusForbidden, "NotBuyer"},
		{"unknown order", "GET", "/orders/9", "", "", "", http.StatusNotFound, "OrderNotFound"},
		{"non numeric id", "GET", "/orders/abc", "", "", "", http.StatusNotFound, "OrderNotFound"},
		{"bad status", "POST", "/orders/1/status", owner, "", `{"status":"Shipped"}`, http.StatusBadRequest, "InvalidStatus"},
		{"bad body", "POST", "/orders", alice, "1100", `{"oops":1}`, http.StatusBadRequest, "InvalidRequest"},
		{"not payable", "POST", "/ledger/withdraw", owner, "5", "", http.StatusBadRequest, "NotPayable"},
		{"zero new owner", "POST", "/ledger/owner", owner, "", `{"new_owner":"0x0000000000000000000000000000000000000000"}`, http.StatusBadRequest, "InvalidAddress"},
		{"bad audit limit", "GET", "/audit?limit=-1", "", "", "", http.StatusBadRequest, "InvalidRequest"},
		// 非管理员在参数解析之前就被拒绝
		{"non owner bad status", "POST", "/orders/1/status", bob, "", `{"status":"Shipped"}`, http.StatusForbidden, "NotOwner"},
		{"non owner bad id", "POST", "/orders/abc/status", bob, "", `{"status":"Confirmed"}`, http.StatusForbidden, "NotOwner"},
		{"owner bad id", "POST", "/orders/abc/status", owner, "", `{"status":"Confirmed"}`, http.StatusNotFound, "OrderNotFound"},
		{"non owner bad new owner", "POST", "/ledger/owner", bob, "", `{"new_owner":"nope"}`, http.StatusForbidden, "NotOwner"},
		{"custody as caller", "POST", "/orders", custody, "1100", createBody, http.StatusBadRequest, "InvalidAddress"},
		{"custody as new owner", "POST", "/ledger/owner", owner, "", `{"new_owner":"` + custody + `"}`, http.StatusBadRequest, "InvalidAddress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, out := do(t, mux, tt.method, tt.path, tt.caller, tt.value, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, out["code"])
		})
	}
}

func TestLedgerHandler_TransferOwnership(t *testing.T) {
	mux := newServer(t)
	do(t, mux, "POST", "/ledger/init", owner, "", "")

	rec, _ := do(t, mux, "POST", "/ledger/owner", owner, "", `{"new_owner":"`+strings.ToUpper(bob[2:])+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing 0x prefix")

	rec, out := do(t, mux, "POST", "/ledger/owner", owner, "", `{"new_owner":"0x`+strings.ToUpper(bob[2:])+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, bob, out["owner"])

	_, out = do(t, mux, "GET", "/ledger/owner", "", "", "")
	assert.Equal(t, bob, out["owner"])
}
