// Package cache implements the process-shared Redis concerns: the Stage 2
// review queue and the Stage 5 predicate-synonym lookup cache. The
// process-local embedding cache (an in-memory LRU, deliberately a distinct
// instance) lives in this package too since both are "cache" concerns, but
// never shares state with the Redis-backed ones.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/redis/go-redis/v9"

	"graphrag/internal/config"
	"graphrag/internal/embedding"
)

// ReviewItem is one entity-linking or predicate-governance decision queued
// for human review.
type ReviewItem struct {
	BuildVersion string
	Kind         string // "entity_link" | "predicate"
	Payload      json.RawMessage
}

// ReviewQueue is a Redis list per build_version holding queued review items.
type ReviewQueue struct {
	client *redis.Client
}

// NewReviewQueue connects to Redis using cfg.
func NewReviewQueue(cfg config.RedisConfig) *ReviewQueue {
	return &ReviewQueue{client: redis.NewClient(&redis.Options{
		Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB,
	})}
}

func queueKey(buildVersion string) string { return "review_queue:" + buildVersion }

// Push enqueues item for review.
func (q *ReviewQueue) Push(ctx context.Context, item ReviewItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, queueKey(item.BuildVersion), data).Err()
}

// Size reports the current queue length for buildVersion, used by job
// diagnostics' review_queue_size field.
func (q *ReviewQueue) Size(ctx context.Context, buildVersion string) (int64, error) {
	return q.client.LLen(ctx, queueKey(buildVersion)).Result()
}

// Pop dequeues the next review item, or ok=false if the queue is empty.
func (q *ReviewQueue) Pop(ctx context.Context, buildVersion string) (ReviewItem, bool, error) {
	data, err := q.client.LPop(ctx, queueKey(buildVersion)).Bytes()
	if err == redis.Nil {
		return ReviewItem{}, false, nil
	}
	if err != nil {
		return ReviewItem{}, false, err
	}
	var item ReviewItem
	if err := json.Unmarshal(data, &item); err != nil {
		return ReviewItem{}, false, err
	}
	return item, true, nil
}

// PredicateSynonym is one cached whitelist predicate embedding used by the
// SynonymLookup adapter below (a predicate.SynonymLookup implementation).
type PredicateSynonym struct {
	Predicate string
	Embedding []float32
}

// SynonymCache caches whitelist predicate embeddings in Redis so every
// pipeline worker shares the same lookup table without recomputing
// embeddings per process.
type SynonymCache struct {
	client *redis.Client
}

// NewSynonymCache connects to Redis using cfg.
func NewSynonymCache(cfg config.RedisConfig) *SynonymCache {
	return &SynonymCache{client: redis.NewClient(&redis.Options{
		Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB,
	})}
}

const synonymSetKey = "predicate_synonyms"

// Put caches predicate's embedding.
func (c *SynonymCache) Put(ctx context.Context, entry PredicateSynonym) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.client.HSet(ctx, synonymSetKey, entry.Predicate, data).Err()
}

// All returns every cached predicate synonym entry.
func (c *SynonymCache) All(ctx context.Context) ([]PredicateSynonym, error) {
	raw, err := c.client.HGetAll(ctx, synonymSetKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]PredicateSynonym, 0, len(raw))
	for _, v := range raw {
		var entry PredicateSynonym
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// SynonymLookup adapts a SynonymCache into predicate.SynonymLookup: it
// embeds the unmapped surface and returns the cached predicate whose
// embedding is closest by cosine similarity. Nearest loads the full cached
// table on every call rather than keeping its own copy, since Put can run
// concurrently from a feedback-driven remap while ingestion is live.
type SynonymLookup struct {
	cache    *SynonymCache
	embedCfg config.EmbeddingConfig
}

// NewSynonymLookup builds a SynonymLookup backed by cache, embedding surfaces
// with embedCfg's provider.
func NewSynonymLookup(cache *SynonymCache, embedCfg config.EmbeddingConfig) *SynonymLookup {
	return &SynonymLookup{cache: cache, embedCfg: embedCfg}
}

// Nearest returns the closest whitelisted predicate to surface, or ("", 0)
// if the synonym table is empty or embedding the surface fails.
func (l *SynonymLookup) Nearest(surface string) (string, float64) {
	ctx := context.Background()
	entries, err := l.cache.All(ctx)
	if err != nil || len(entries) == 0 {
		return "", 0
	}
	vecs, err := embedding.EmbedText(ctx, l.embedCfg, []string{surface})
	if err != nil || len(vecs) != 1 {
		return "", 0
	}
	surfaceVec := vecs[0]

	var bestPredicate string
	var bestSim float64
	for _, entry := range entries {
		sim := cosineSimilarity(surfaceVec, entry.Embedding)
		if sim > bestSim {
			bestSim = sim
			bestPredicate = entry.Predicate
		}
	}
	return bestPredicate, bestSim
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// EmbeddingCache is a process-local, in-memory LRU cache for embedding
// lookups, explicitly distinct from any Redis-backed cache in this package:
// it is process-scoped and never shared across pipeline workers.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type embeddingCacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache constructs an LRU cache holding up to capacity entries.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &EmbeddingCache{capacity: capacity, entries: make(map[string]*list.Element), order: list.New()}
}

// Get returns the cached embedding for key, if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*embeddingCacheEntry).value, true
}

// Put inserts or updates the cached embedding for key, evicting the least
// recently used entry once capacity is exceeded.
func (c *EmbeddingCache) Put(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*embeddingCacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&embeddingCacheEntry{key: key, value: value})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*embeddingCacheEntry).key)
		}
	}
}
