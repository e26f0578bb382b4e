package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked 表示锁已被其他调用持有。
var ErrLocked = errors.New("lock held by another run")

// DefaultTTL 为单次批处理锁的默认有效期。
const DefaultTTL = 5 * time.Minute

// Config Redis 锁配置，Addr 为空表示不启用。
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	TTL      string `yaml:"lock_ttl" json:"lock_ttl"`
}

// Locker 基于 redislock 为同一店铺的批处理提供互斥。
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
}

// New 使用已有 Redis 客户端创建 Locker。
func New(client redis.Scripter, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: redislock.New(client), ttl: ttl, prefix: "wanted-radar:"}
}

// Dial 按配置连接 Redis，返回 Locker 与关闭函数。
func Dial(ctx context.Context, cfg Config) (*Locker, func() error, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	ttl := DefaultTTL
	if cfg.TTL != "" {
		if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
			ttl = d
		}
	}
	return New(rdb, ttl), rdb.Close, nil
}

// Lock 获取 key 对应的锁，返回释放函数；锁已被持有时返回 ErrLocked。
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lk, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%s: %w", key, ErrLocked)
		}
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return lk.Release, nil
}
