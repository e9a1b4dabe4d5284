// internal/service/ledger/domain/amount.go
package domain

import (
	"bytes"
	"strconv"
)

// Amount 是以最小单位计的金额（例如 wei）。
// JSON 中序列化为十进制字符串，避免前端 Number 精度丢失。
// 上限是 MaxAmount（约 18.4 ETH），任何余额、订单总额、附带金额超过它都按溢出拒绝。
type Amount uint64

// MaxAmount = 18446744073709551615 wei
const MaxAmount = Amount(^uint64(0))

// CheckedAdd 做带溢出检查的加法
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := a + b
	if sum < a {
		return 0, ErrAmountOverflow
	}
	return sum, nil
}

func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAmount 解析十进制字符串金额
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrAmountOverflow
	}
	return Amount(v), nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON 同时接受 "123" 和 123 两种写法
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := ParseAmount(string(data))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
