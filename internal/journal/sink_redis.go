package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"
)

const DefaultRedisKey = "ubichill:journal"

// RedisSink pushes facts onto a capped redis list. The connection is
// shared between the writer and readers, so every command holds mu.
type RedisSink struct {
	mu     sync.Mutex
	c      redis.Conn
	key    string
	maxLen int
}

func DialRedis(addr string, db int, key string, maxLen int) (*RedisSink, error) {
	c, err := redis.Dial("tcp", addr,
		redis.DialDatabase(db),
		redis.DialConnectTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing redis %s: %w", addr, err)
	}
	return newRedisSink(c, key, maxLen), nil
}

func newRedisSink(c redis.Conn, key string, maxLen int) *RedisSink {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSink{c: c, key: key, maxLen: maxLen}
}

func (s *RedisSink) Write(_ context.Context, f Fact) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding fact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.c.Do("RPUSH", s.key, data); err != nil {
		return fmt.Errorf("pushing fact: %w", err)
	}
	if s.maxLen > 0 {
		if _, err := s.c.Do("LTRIM", s.key, -s.maxLen, -1); err != nil {
			return fmt.Errorf("trimming journal: %w", err)
		}
	}
	return nil
}

// Recent returns up to limit facts, newest first.
func (s *RedisSink) Recent(_ context.Context, limit int) ([]Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := redis.ByteSlices(s.c.Do("LRANGE", s.key, -limit, -1))
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	out := make([]Fact, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var f Fact
		if err := json.Unmarshal(items[i], &f); err != nil {
			return nil, fmt.Errorf("decoding fact: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *RedisSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Close()
}
