package transcribe

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// BufferStore holds the accumulated transcript per consultation while a
// session is live. It is a cache only: the persisted consultation record
// stays authoritative across restarts. Reset must be called on session
// start/stop so a reused id never leaks a previous session's text.
type BufferStore interface {
	// Append adds a chunk and returns the full accumulated transcript.
	Append(ctx context.Context, consultationID, chunk string) (string, error)
	Get(ctx context.Context, consultationID string) (string, error)
	Reset(ctx context.Context, consultationID string) error
}

const bufferTTL = 4 * time.Hour

type redisBuffer struct {
	client *redis.Client
}

// NewRedisBuffer backs the transcript buffer with redis, so multiple server
// instances can share a live session.
func NewRedisBuffer(client *redis.Client) BufferStore {
	return &redisBuffer{client: client}
}

func bufferKey(consultationID string) string {
	return "scribe:transcript:" + consultationID
}

func (b *redisBuffer) Append(ctx context.Context, consultationID, chunk string) (string, error) {
	key := bufferKey(consultationID)

	current, err := b.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return "", err
	}

	full := joinChunk(current, chunk)
	if err := b.client.Set(ctx, key, full, bufferTTL).Err(); err != nil {
		return "", err
	}
	return full, nil
}

func (b *redisBuffer) Get(ctx context.Context, consultationID string) (string, error) {
	v, err := b.client.Get(ctx, bufferKey(consultationID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (b *redisBuffer) Reset(ctx context.Context, consultationID string) error {
	return b.client.Del(ctx, bufferKey(consultationID)).Err()
}

type memoryBuffer struct {
	mu      sync.Mutex
	buffers map[string]string
}

// NewMemoryBuffer is the single-process fallback used when no redis is
// configured, and in tests.
func NewMemoryBuffer() BufferStore {
	return &memoryBuffer{buffers: make(map[string]string)}
}

func (b *memoryBuffer) Append(_ context.Context, consultationID, chunk string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	full := joinChunk(b.buffers[consultationID], chunk)
	b.buffers[consultationID] = full
	return full, nil
}

func (b *memoryBuffer) Get(_ context.Context, consultationID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffers[consultationID], nil
}

func (b *memoryBuffer) Reset(_ context.Context, consultationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, consultationID)
	return nil
}

func joinChunk(current, chunk string) string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return current
	}
	if current == "" {
		return chunk
	}
	return current + " " + chunk
}
