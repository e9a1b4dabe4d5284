// internal/service/ledger/domain/address.go
package domain

import (
	"encoding/hex"
	"strings"
)

// Address 是调用者/收款方的身份标识，格式为 0x + 40 位十六进制，统一小写存储。
type Address string

// ZeroAddress 是空身份，永远不能成为管理员或收款方。
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress 解析并规范化一个地址字符串。零地址可以被解析，由调用方决定是否拒绝。
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", ErrInvalidAddress
	}
	return Address(s), nil
}

// IsZero 判断是否为空身份（未设置或零地址）
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

func (a Address) String() string {
	if a == "" {
		return string(ZeroAddress)
	}
	return string(a)
}
