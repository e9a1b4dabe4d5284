// internal/service/ledger/infrastructure/recipients.go
package infrastructure

import (
	"strings"

	"chowfast/internal/service/ledger/domain"
)

// RejectingRecipients 是拒收转入的身份集合（例如不接受价值的合约地址）。
// 未列出的身份都接受转入。
type RejectingRecipients map[domain.Address]struct{}

func NewRejectingRecipients(addrs ...string) RejectingRecipients {
	r := make(RejectingRecipients, len(addrs))
	for _, a := range addrs {
		r[domain.Address(strings.ToLower(strings.TrimSpace(a)))] = struct{}{}
	}
	return r
}

func (r RejectingRecipients) Accepts(addr domain.Address) bool {
	_, rejected := r[addr]
	return !rejected
}
