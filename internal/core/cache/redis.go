package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache 读穿缓存：配置了 redis 时走 redis，否则退化为进程内 map。
// 同一 key 的并发回源经 singleflight 合并。
type Cache struct {
	RDB *redis.Client
	sf  singleflight.Group

	mu  sync.Mutex
	mem map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	val []byte
	exp time.Time
}

// New addr 为空时只用进程内缓存
func New(addr, pass string, db int) *Cache {
	c := NewMemory()
	if addr != "" {
		c.RDB = redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
	}
	return c
}

func NewMemory() *Cache {
	return &Cache{mem: make(map[string]memEntry), now: time.Now}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.RDB == nil {
		return nil
	}
	return c.RDB.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c.RDB == nil {
		return nil
	}
	return c.RDB.Close()
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.RDB != nil {
		b, err := c.RDB.Get(ctx, key).Bytes()
		return b, err == nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.mem[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && !c.now().Before(e.exp) {
		delete(c.mem, key)
		return nil, false
	}
	return e.val, true
}

func (c *Cache) set(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if c.RDB != nil {
		_ = c.RDB.Set(ctx, key, b, ttl).Err()
		return
	}
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.mem[key] = memEntry{val: b, exp: exp}
	c.mu.Unlock()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.RDB != nil {
		err := c.RDB.Del(ctx, key).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	// 先读缓存
	if b, ok := c.get(ctx, key); ok {
		return b, nil
	}
	// single flight 合并回源
	v, err, _ := c.sf.Do(key, func() (any, error) {
		b, e := load(ctx)
		if e != nil {
			return nil, e
		}
		c.set(ctx, key, b, ttl)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
