// internal/service/ledger/interfaces/errors.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"chowfast/internal/pkg/logger"
	"chowfast/internal/service/ledger/domain"

	"github.com/pkg/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor 把账本错误分类映射为 HTTP 状态码
func statusFor(err error) int {
	if errors.Is(err, domain.ErrOrderNotFound) {
		return http.StatusNotFound
	}
	class, ok := domain.ClassOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch class {
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassPayment:
		return http.StatusPaymentRequired
	case domain.ClassAuthorization:
		return http.StatusForbidden
	case domain.ClassStateConflict:
		return http.StatusConflict
	case domain.ClassTransfer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Code: domain.CodeOf(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("❌ Internal error")
		body = errorBody{Code: "Internal", Message: "internal error"}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
