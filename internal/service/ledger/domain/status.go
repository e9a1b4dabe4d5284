// internal/service/ledger/domain/status.go
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// OrderStatus 是订单状态的序号编码，与链上 uint8 保持一致
type OrderStatus uint8

const (
	StatusPending   OrderStatus = iota // 保留状态，创建时直接进入 Paid
	StatusPaid                         // 已支付（创建即支付）
	StatusConfirmed                    // 商家已确认
	StatusCompleted                    // 已完成
	StatusCancelled                    // 已取消，终态
)

var statusNames = [...]string{"Pending", "Paid", "Confirmed", "Completed", "Cancelled"}

func (s OrderStatus) String() string {
	if s.Known() {
		return statusNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// Known 报告该序号是否为已声明的状态。管理员可以写入任意序号，所以未知值是合法存储值。
func (s OrderStatus) Known() bool {
	return int(s) < len(statusNames)
}

// ParseOrderStatus 接受状态名（不区分大小写）或 0-255 的序号
func ParseOrderStatus(v string) (OrderStatus, error) {
	v = strings.TrimSpace(v)
	for i, name := range statusNames {
		if strings.EqualFold(v, name) {
			return OrderStatus(i), nil
		}
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, ErrInvalidStatus
	}
	return OrderStatus(n), nil
}
