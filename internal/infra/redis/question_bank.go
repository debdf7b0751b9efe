package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quiz-duel-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// PoolLoader fetches the full question pool for one type from a backing
// store (e.g., Postgres).
type PoolLoader interface {
	Types() []domain.QuestionType
	LoadPool(ctx context.Context, qt domain.QuestionType) ([]domain.Question, error)
}

// QuestionBank caches question pools in Redis (one JSON value per type) and
// falls back to the loader on cache miss. Implements app.QuestionGenerator.
// Pools are stored as: SET questions:{type}:pool {json} EX ttl
type QuestionBank struct {
	client *redis.Client
	loader PoolLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBank(client *redis.Client, loader PoolLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Types() []domain.QuestionType {
	return b.loader.Types()
}

// Generate returns one random question of the given type, or
// domain.ErrNotEnoughData when the pool for that type is empty.
func (b *QuestionBank) Generate(ctx context.Context, qt domain.QuestionType) (domain.Question, error) {
	pool, err := b.getPool(ctx, qt)
	if err != nil {
		return domain.Question{}, err
	}
	if len(pool) == 0 {
		return domain.Question{}, domain.ErrNotEnoughData
	}
	b.rndMu.Lock()
	pick := b.rnd.Intn(len(pool))
	b.rndMu.Unlock()
	return pool[pick], nil
}

func (b *QuestionBank) getPool(ctx context.Context, qt domain.QuestionType) ([]domain.Question, error) {
	key := b.poolKey(qt)

	if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
		var pool []domain.Question
		if err := json.Unmarshal(raw, &pool); err == nil {
			return pool, nil
		}
	}

	result, err, _ := b.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := b.client.Get(ctx, key).Bytes(); err == nil {
			var pool []domain.Question
			if err := json.Unmarshal(raw, &pool); err == nil {
				return pool, nil
			}
		}

		pool, err := b.loader.LoadPool(ctx, qt)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(pool); err == nil {
			_ = b.client.Set(ctx, key, raw, b.ttlWithJitter()).Err()
		}
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) poolKey(qt domain.QuestionType) string {
	return "questions:" + strconv.Itoa(int(qt)) + ":pool"
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
