package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 目录投影的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisDirectory 把目录投影写入 Redis：每个智能体一个 hash，
// 外加按创建者与按策略类型的计数器，供索引器直接查询。
type RedisDirectory struct {
	client *redis.Client
	prefix string
}

// NewRedisDirectory 创建 Redis 目录投影。
func NewRedisDirectory(cfg RedisConfig) (*RedisDirectory, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "opendca"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisDirectory{client: client, prefix: prefix}, nil
}

func (d *RedisDirectory) agentKey(creator string, agentID uint64) string {
	return fmt.Sprintf("%s:agent:%s:%d", d.prefix, creator, agentID)
}

func (d *RedisDirectory) typeKey(strategyType string) string {
	return fmt.Sprintf("%s:count:type:%s", d.prefix, strategyType)
}

func (d *RedisDirectory) ownerKey(creator string) string {
	return fmt.Sprintf("%s:count:creator:%s", d.prefix, creator)
}

// Register 实现 Directory 接口。
func (d *RedisDirectory) Register(ctx context.Context, reg Registration) error {
	pipe := d.client.TxPipeline()
	pipe.HSet(ctx, d.agentKey(reg.Creator, reg.AgentID), map[string]any{
		"creator":           reg.Creator,
		"agent_id":          strconv.FormatUint(reg.AgentID, 10),
		"strategy_type":     reg.StrategyType,
		"display_name":      reg.DisplayName,
		"active":            "1",
		"transaction_count": "0",
	})
	pipe.Incr(ctx, d.typeKey(reg.StrategyType))
	pipe.Incr(ctx, d.ownerKey(reg.Creator))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("登记目录条目失败: %w", err)
	}
	return nil
}

// SetActive 实现 Directory 接口。
func (d *RedisDirectory) SetActive(ctx context.Context, creator string, agentID uint64, active bool) error {
	value := "0"
	if active {
		value = "1"
	}
	if err := d.client.HSet(ctx, d.agentKey(creator, agentID), "active", value).Err(); err != nil {
		return fmt.Errorf("更新目录活跃标记失败: %w", err)
	}
	return nil
}

// SetTransactionCount 实现 Directory 接口。
func (d *RedisDirectory) SetTransactionCount(ctx context.Context, creator string, agentID uint64, count uint64) error {
	err := d.client.HSet(ctx, d.agentKey(creator, agentID),
		"transaction_count", strconv.FormatUint(count, 10)).Err()
	if err != nil {
		return fmt.Errorf("更新目录交易计数失败: %w", err)
	}
	return nil
}

// Remove 实现 Directory 接口。
func (d *RedisDirectory) Remove(ctx context.Context, creator string, agentID uint64) error {
	strategyType, err := d.client.HGet(ctx, d.agentKey(creator, agentID), "strategy_type").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("读取目录条目失败: %w", err)
	}
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, d.agentKey(creator, agentID))
	pipe.Decr(ctx, d.typeKey(strategyType))
	pipe.Decr(ctx, d.ownerKey(creator))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("移除目录条目失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (d *RedisDirectory) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

var _ Directory = (*RedisDirectory)(nil)
