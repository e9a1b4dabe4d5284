package port

import "chowfast/internal/service/ledger/domain"

// RecipientGuard 决定某个收款方是否接受转入。拒收会使转账失败并回滚整次调用。
type RecipientGuard interface {
	Accepts(addr domain.Address) bool
}
