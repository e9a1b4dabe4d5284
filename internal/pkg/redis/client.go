// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"chowfast/internal/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 的 UniversalClient：单地址为单机，多地址自动切换为集群模式。
// 同时维护一组按名称注册的 Lua 脚本。
type Client struct {
	client  goredis.UniversalClient
	scripts map[string]*goredis.Script
	mu      sync.RWMutex
}

// NewClient 创建客户端并 PING 一次确认连通。addrs 格式为 "host1:port1,host2:port2"
func NewClient(ctx context.Context, addrs, password string) (*Client, error) {
	opts := &goredis.UniversalOptions{
		Addrs:    strings.Split(addrs, ","),
		Password: password,
	}
	rdb := goredis.NewUniversalClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addrs, err)
	}
	logger.Ctx(ctx).Info().Str("addrs", addrs).Msg("✅ Successfully connected to Redis.")
	return &Client{client: rdb, scripts: make(map[string]*goredis.Script)}, nil
}

// Wrap 用已有的 UniversalClient 构造 Client
func Wrap(rdb goredis.UniversalClient) *Client {
	return &Client{client: rdb, scripts: make(map[string]*goredis.Script)}
}

// GetClient 返回底层客户端，用于 pipeline 等高级操作
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent 注册并预加载一个 Lua 脚本
func (c *Client) LoadScriptFromContent(ctx context.Context, name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return fmt.Errorf("failed to load script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本，脚本缓存丢失时 go-redis 会自动回退到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %s not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) Close() error {
	return c.client.Close()
}
