// internal/service/ledger/domain/errors.go
package domain

import "errors"

// ErrorClass 是账本错误的分类，决定了调用方如何处理（是否可以重试、映射到哪个 HTTP 状态码）
type ErrorClass string

const (
	ClassValidation    ErrorClass = "VALIDATION"     // 输入有误，修正后可重新提交
	ClassAuthorization ErrorClass = "AUTHORIZATION"  // 身份不匹配
	ClassStateConflict ErrorClass = "STATE_CONFLICT" // 当前账本状态不允许该操作
	ClassPayment       ErrorClass = "PAYMENT"        // 附带金额不足
	ClassTransfer      ErrorClass = "TRANSFER"       // 资金转移原语失败
)

// Error 是账本操作的类型化拒绝。所有哨兵错误都是 *Error，用 errors.Is 比较。
type Error struct {
	Code    string
	Class   ErrorClass
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrNoItems             = &Error{Code: "NoItems", Class: ClassValidation, Message: "no items"}
	ErrArrayLengthMismatch = &Error{Code: "ArrayLengthMismatch", Class: ClassValidation, Message: "array length mismatch"}
	ErrZeroSubtotal        = &Error{Code: "ZeroSubtotal", Class: ClassValidation, Message: "zero subtotal"}
	ErrNoDeliveryInfo      = &Error{Code: "NoDeliveryInfo", Class: ClassValidation, Message: "no delivery info"}
	ErrOrderNotFound       = &Error{Code: "OrderNotFound", Class: ClassValidation, Message: "order not found"}
	ErrInvalidAddress      = &Error{Code: "InvalidAddress", Class: ClassValidation, Message: "invalid address"}
	ErrInvalidStatus       = &Error{Code: "InvalidStatus", Class: ClassValidation, Message: "invalid order status"}
	ErrAmountOverflow      = &Error{Code: "AmountOverflow", Class: ClassValidation, Message: "amount overflow"}
	ErrZeroAmount          = &Error{Code: "ZeroAmount", Class: ClassValidation, Message: "zero amount"}
	ErrNotPayable          = &Error{Code: "NotPayable", Class: ClassValidation, Message: "operation does not accept attached value"}

	ErrNotOwner = &Error{Code: "NotOwner", Class: ClassAuthorization, Message: "only owner"}
	ErrNotBuyer = &Error{Code: "NotBuyer", Class: ClassAuthorization, Message: "only buyer"}

	ErrOrderCancelled      = &Error{Code: "OrderCancelled", Class: ClassStateConflict, Message: "order cancelled"}
	ErrCanOnlyCancelPaid   = &Error{Code: "CanOnlyCancelPaid", Class: ClassStateConflict, Message: "can only cancel paid"}
	ErrTimeExpired         = &Error{Code: "TimeExpired", Class: ClassStateConflict, Message: "time expired"}
	ErrNoFunds             = &Error{Code: "NoFunds", Class: ClassStateConflict, Message: "no funds"}
	ErrTransitionDenied    = &Error{Code: "TransitionDenied", Class: ClassStateConflict, Message: "status transition denied by policy"}
	ErrInsufficientPayment = &Error{Code: "InsufficientPayment", Class: ClassPayment, Message: "insufficient payment"}

	ErrInsufficientFunds = &Error{Code: "InsufficientFunds", Class: ClassTransfer, Message: "insufficient funds for transfer"}
	ErrTransferRejected  = &Error{Code: "TransferRejected", Class: ClassTransfer, Message: "recipient rejected transfer"}
	ErrSelfTransfer      = &Error{Code: "SelfTransfer", Class: ClassTransfer, Message: "sender and recipient are the same account"}
)

// ClassOf 返回错误链中第一个 *Error 的分类。
func ClassOf(err error) (ErrorClass, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// CodeOf 返回错误链中第一个 *Error 的错误码，非账本错误返回空串。
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
