// internal/pkg/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"time"

	"chowfast/internal/pkg/logger"

	"github.com/go-zookeeper/zk"
)

// Conn 封装 ZooKeeper 连接
type Conn struct {
	*zk.Conn
}

// Connect 建立会话。servers 格式为 ["host1:2181", "host2:2181"]
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	// 丢弃会话事件，避免 channel 堵塞
	go func() {
		for ev := range events {
			if ev.State == zk.StateExpired {
				logger.L().Warn().Str("server", ev.Server).Msg("⚠️ ZooKeeper session expired.")
			}
		}
	}()
	logger.L().Info().Strs("servers", servers).Msg("✅ Successfully connected to ZooKeeper.")
	return &Conn{Conn: conn}, nil
}
