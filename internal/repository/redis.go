package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yiyuanduobao/duobao/config"
	"github.com/yiyuanduobao/duobao/internal/model"
)

const (
	// Redis键前缀
	RoundCacheKey     = "round:cache:"
	RoundRemainingKey = "round:remaining:"

	// Lua脚本：原子地预扣剩余份额。
	// 该计数只是购买路径上的快速失败闸门，权威数据在MySQL；
	// 计数未初始化时返回 -2，由调用方放行到数据库判定。
	ReserveRemainingScript = `
		local remaining = tonumber(redis.call('GET', KEYS[1]))
		if not remaining then
			return -2
		end
		if remaining < tonumber(ARGV[1]) then
			return -1
		end
		return redis.call('DECRBY', KEYS[1], ARGV[1])
	`
)

type RedisRepository struct {
	client       *redis.Client
	ctx          context.Context
	scriptHashes map[string]string // 存储脚本SHA1哈希值
}

func NewRedisRepository() (*RedisRepository, error) {
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.DataAddress,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis数据节点连接测试失败: %w", err)
	}

	repo := &RedisRepository{
		client:       client,
		ctx:          ctx,
		scriptHashes: make(map[string]string),
	}

	if err := repo.preloadScripts(); err != nil {
		return nil, fmt.Errorf("预加载Lua脚本失败: %w", err)
	}

	return repo, nil
}

// preloadScripts 预加载所有Lua脚本
func (r *RedisRepository) preloadScripts() error {
	sha1, err := r.client.ScriptLoad(r.ctx, ReserveRemainingScript).Result()
	if err != nil {
		return fmt.Errorf("加载剩余份额脚本失败: %w", err)
	}
	r.scriptHashes["reserveRemaining"] = sha1
	return nil
}

// GetCachedRound 从缓存获取期次快照
func (r *RedisRepository) GetCachedRound(periodCode string) (*model.Round, bool, error) {
	key := RoundCacheKey + periodCode
	data, err := r.client.Get(r.ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("获取期次缓存失败: %w", err)
	}

	var round model.Round
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, false, fmt.Errorf("解析期次缓存失败: %w", err)
	}
	return &round, true, nil
}

// CacheRound 写入期次缓存
func (r *RedisRepository) CacheRound(round *model.Round) error {
	key := RoundCacheKey + round.PeriodCode
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("序列化期次失败: %w", err)
	}

	// 终态期次缓存更久，售卖中的期次缓存短一些
	expires := 10 * time.Second
	if round.Status.Terminal() {
		expires = time.Hour
	}
	if err := r.client.Set(r.ctx, key, data, expires).Err(); err != nil {
		return fmt.Errorf("写入期次缓存失败: %w", err)
	}
	return nil
}

// InvalidateRound 删除期次缓存（状态变更后调用）
func (r *RedisRepository) InvalidateRound(periodCode string) error {
	if err := r.client.Del(r.ctx, RoundCacheKey+periodCode).Err(); err != nil {
		return fmt.Errorf("删除期次缓存失败: %w", err)
	}
	return nil
}

// InitRemainingShares 初始化剩余份额计数（期次激活时调用）
func (r *RedisRepository) InitRemainingShares(periodCode string, remaining int) error {
	key := RoundRemainingKey + periodCode
	if err := r.client.Set(r.ctx, key, remaining, 0).Err(); err != nil {
		return fmt.Errorf("初始化剩余份额计数失败: %w", err)
	}
	return nil
}

// ReserveRemaining 原子预扣剩余份额。
// 返回 reserved=false 表示份额不足应快速失败；known=false 表示计数未初始化，
// 调用方应放行到MySQL判定。
func (r *RedisRepository) ReserveRemaining(periodCode string, quantity int) (reserved bool, known bool, err error) {
	key := RoundRemainingKey + periodCode

	sha1, ok := r.scriptHashes["reserveRemaining"]
	if !ok {
		return false, false, fmt.Errorf("脚本未预加载")
	}

	result, err := r.client.EvalSha(r.ctx, sha1, []string{key}, quantity).Result()
	if err != nil {
		if err.Error() == "NOSCRIPT No matching script. Please use EVAL." {
			sha1, err = r.client.ScriptLoad(r.ctx, ReserveRemainingScript).Result()
			if err != nil {
				return false, false, fmt.Errorf("重新加载剩余份额脚本失败: %w", err)
			}
			r.scriptHashes["reserveRemaining"] = sha1
			result, err = r.client.EvalSha(r.ctx, sha1, []string{key}, quantity).Result()
			if err != nil {
				return false, false, fmt.Errorf("执行剩余份额脚本失败: %w", err)
			}
		} else {
			return false, false, fmt.Errorf("执行剩余份额脚本失败: %w", err)
		}
	}

	n, ok := result.(int64)
	if !ok {
		return false, false, fmt.Errorf("LUA脚本返回类型错误")
	}

	switch {
	case n == -2:
		return false, false, nil
	case n == -1:
		return false, true, nil
	default:
		return true, true, nil
	}
}

// ReleaseRemaining 归还预扣的份额（MySQL事务失败时补偿）
func (r *RedisRepository) ReleaseRemaining(periodCode string, quantity int) error {
	key := RoundRemainingKey + periodCode
	if err := r.client.IncrBy(r.ctx, key, int64(quantity)).Err(); err != nil {
		return fmt.Errorf("归还剩余份额失败: %w", err)
	}
	return nil
}

// ClearRemaining 清除剩余份额计数（期次进入终态后调用）
func (r *RedisRepository) ClearRemaining(periodCode string) error {
	if err := r.client.Del(r.ctx, RoundRemainingKey+periodCode).Err(); err != nil {
		return fmt.Errorf("清除剩余份额计数失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
