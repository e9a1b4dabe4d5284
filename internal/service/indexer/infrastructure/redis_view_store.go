// internal/service/indexer/infrastructure/redis_view_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"chowfast/internal/pkg/redis"
	"chowfast/internal/service/indexer/domain"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// 所有 key 共用 {ledger} 哈希标签，保证在集群模式下落在同一个 slot，MULTI 才能执行
const (
	keyCheckpoint  = "{ledger}:checkpoint"
	keyOrderPrefix = "{ledger}:order:"
	keyBuyerPrefix = "{ledger}:buyer:"

	scriptAdvanceCheckpoint = "advance_checkpoint"
)

// advanceCheckpointLua 只在新 seq 更大时写入检查点
const advanceCheckpointLua = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local nxt = tonumber(ARGV[1])
if nxt > cur then
  redis.call('SET', KEYS[1], ARGV[1])
  return 1
end
return 0
`

// RedisViewStore 把订单视图保存在 Redis：
// 视图 JSON 存在字符串 key 中，买家索引是按订单号排序的 ZSET。
type RedisViewStore struct {
	client *redis.Client
}

// NewRedisViewStore 创建存储并预加载 Lua 脚本
func NewRedisViewStore(ctx context.Context, client *redis.Client) (*RedisViewStore, error) {
	if err := client.LoadScriptFromContent(ctx, scriptAdvanceCheckpoint, advanceCheckpointLua); err != nil {
		return nil, err
	}
	return &RedisViewStore{client: client}, nil
}

func orderKey(id uint64) string    { return keyOrderPrefix + strconv.FormatUint(id, 10) }
func buyerKey(buyer string) string { return keyBuyerPrefix + buyer }

func (s *RedisViewStore) Checkpoint(ctx context.Context) (uint64, error) {
	v, err := s.client.GetClient().Get(ctx, keyCheckpoint).Uint64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read indexer checkpoint")
	}
	return v, nil
}

func (s *RedisViewStore) Get(ctx context.Context, orderID uint64) (*domain.OrderView, error) {
	data, err := s.client.GetClient().Get(ctx, orderKey(orderID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrViewNotFound
		}
		return nil, errors.Wrapf(err, "read order view %d", orderID)
	}
	var v domain.OrderView
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrapf(err, "decode order view %d", orderID)
	}
	return &v, nil
}

func (s *RedisViewStore) Apply(ctx context.Context, seq uint64, view *domain.OrderView) error {
	if view == nil {
		_, err := s.client.RunScript(ctx, scriptAdvanceCheckpoint, []string{keyCheckpoint}, seq)
		return errors.Wrapf(err, "advance checkpoint to %d", seq)
	}
	data, err := json.Marshal(view)
	if err != nil {
		return errors.Wrapf(err, "encode order view %d", view.OrderID)
	}
	_, err = s.client.GetClient().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, orderKey(view.OrderID), data, 0)
		pipe.ZAdd(ctx, buyerKey(view.Buyer), goredis.Z{Score: float64(view.OrderID), Member: view.OrderID})
		pipe.Set(ctx, keyCheckpoint, seq, 0)
		return nil
	})
	return errors.Wrapf(err, "apply order view %d at seq %d", view.OrderID, seq)
}

func (s *RedisViewStore) ListByBuyer(ctx context.Context, buyer string, limit int) ([]*domain.OrderView, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.GetClient().ZRevRange(ctx, buyerKey(buyer), 0, stop).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "list orders of %s", buyer)
	}
	if len(ids) == 0 {
		return []*domain.OrderView{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOrderPrefix + id
	}
	values, err := s.client.GetClient().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "load orders of %s", buyer)
	}
	out := make([]*domain.OrderView, 0, len(values))
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v domain.OrderView
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, errors.Wrapf(err, "decode order view %s", ids[i])
		}
		out = append(out, &v)
	}
	return out, nil
}
