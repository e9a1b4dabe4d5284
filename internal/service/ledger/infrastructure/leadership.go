// internal/service/ledger/infrastructure/leadership.go
package infrastructure

import (
	"time"

	"chowfast/internal/pkg/zookeeper"
)

// LocalLeadership 是单实例部署下的 Leadership，永远是 leader
type LocalLeadership struct{}

func (LocalLeadership) Lock() error   { return nil }
func (LocalLeadership) Unlock() error { return nil }

// ZookeeperLeadership 用 ZooKeeper 分布式锁选出唯一的审计中继
type ZookeeperLeadership struct {
	lock *zookeeper.DistributedLock
}

func NewZookeeperLeadership(conn *zookeeper.Conn, ledgerName string, wait time.Duration) (*ZookeeperLeadership, error) {
	lock, err := zookeeper.NewDistributedLock(conn, "audit-relay-"+ledgerName, wait)
	if err != nil {
		return nil, err
	}
	return &ZookeeperLeadership{lock: lock}, nil
}

func (z *ZookeeperLeadership) Lock() error   { return z.lock.Lock() }
func (z *ZookeeperLeadership) Unlock() error { return z.lock.Unlock() }
