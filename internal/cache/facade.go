package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache 是面向调用方的门面：负责 key → id 派生、默认值与批量操作，
// 实际读写委托给任意 Store（FileStore、memory.Store 或 chain.Store）。
type Cache struct {
	store      Store
	hasher     KeyHasher
	defaultTTL int64
	logger     *logrus.Logger
}

// Option 调整 Cache 的可选行为。
type Option func(*Cache)

// WithDefaultTTL 设置 SetDefault 使用的 ttl（秒）。
func WithDefaultTTL(ttl int64) Option {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithLogger 注入日志实例。
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New 以 store + hasher 构建门面，默认 ttl 为 Permanent。
func New(store Store, hasher KeyHasher, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		hasher:     hasher,
		defaultTTL: Permanent,
		logger:     discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store 返回底层存储。
func (c *Cache) Store() Store { return c.store }

// DefaultTTL 返回 SetDefault 使用的 ttl。
func (c *Cache) DefaultTTL() int64 { return c.defaultTTL }

// BuildID 暴露 id 派生，便于诊断。
func (c *Cache) BuildID(key any) (string, error) {
	return c.hasher.BuildID(key)
}

func (c *Cache) Get(ctx context.Context, key any) ([]byte, bool, error) {
	id, err := c.hasher.BuildID(key)
	if err != nil {
		return nil, false, err
	}
	return c.store.Get(ctx, id)
}

// GetOrDefault 未命中时返回 def。
func (c *Cache) GetOrDefault(ctx context.Context, key any, def []byte) ([]byte, error) {
	value, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return value, nil
}

func (c *Cache) Set(ctx context.Context, key any, value []byte, ttl int64) error {
	id, err := c.hasher.BuildID(key)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, id, value, ttl)
}

// SetDefault 使用门面的默认 ttl 写入。
func (c *Cache) SetDefault(ctx context.Context, key any, value []byte) error {
	return c.Set(ctx, key, value, c.defaultTTL)
}

// SetTTL 接受 time.Duration，按秒向下取整后写入；不足一秒的正数按一秒处理。
func (c *Cache) SetTTL(ctx context.Context, key any, value []byte, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if ttl > 0 && seconds == 0 {
		seconds = 1
	}
	if ttl < 0 {
		seconds = 0
	}
	return c.Set(ctx, key, value, seconds)
}

func (c *Cache) Delete(ctx context.Context, key any) error {
	id, err := c.hasher.BuildID(key)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, id)
}

func (c *Cache) Has(ctx context.Context, key any) (bool, error) {
	id, err := c.hasher.BuildID(key)
	if err != nil {
		return false, err
	}
	return c.store.Exists(ctx, id)
}

func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// GetMultiple 返回命中的条目，未命中的 key 不出现在结果中。
func (c *Cache) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, ok, err := c.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", key, err)
		}
		if ok {
			result[key] = value
		}
	}
	return result, nil
}

// SetMultiple 逐个写入，遇到第一个失败即返回，之前写入的条目保留。
func (c *Cache) SetMultiple(ctx context.Context, values map[string][]byte, ttl int64) error {
	for key, value := range values {
		if err := c.Set(ctx, key, value, ttl); err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
	}
	return nil
}

// DeleteMultiple 尝试删除全部 key，并合并返回所有失败。
func (c *Cache) DeleteMultiple(ctx context.Context, keys []string) error {
	var errs []error
	for _, key := range keys {
		if err := c.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Remember 命中时直接返回；否则调用 fn 计算并写入。fn 出错时不写缓存。
func (c *Cache) Remember(ctx context.Context, key any, ttl int64, fn func() ([]byte, error)) ([]byte, error) {
	value, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return value, nil
	}

	value, err = fn()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		c.logger.WithError(err).Warn("cache_remember_store_failed")
	}
	return value, nil
}
