package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"quiz-duel-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// PoolLoader fetches the full question pool for one type from a backing
// store (e.g., Postgres).
type PoolLoader interface {
	Types() []domain.QuestionType
	LoadPool(ctx context.Context, qt domain.QuestionType) ([]domain.Question, error)
}

// QuestionBank caches question pools with TTL to avoid repeated DB hits and
// serves random questions out of them. Implements app.QuestionGenerator.
type QuestionBank struct {
	loader PoolLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[domain.QuestionType]cachedPool
}

type cachedPool struct {
	pool      []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(loader PoolLoader, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[domain.QuestionType]cachedPool),
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
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[qt]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.pool, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(poolKey(qt), func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[qt]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.pool, nil
		}
		b.mu.RUnlock()

		pool, err := b.loader.LoadPool(ctx, qt)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[qt] = cachedPool{pool: pool, expiresAt: now.Add(b.ttlWithJitter())}
		b.mu.Unlock()
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	b.rndMu.Lock()
	defer b.rndMu.Unlock()
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// StaticPoolLoader is a simple loader backed by an in-memory map (useful
// for tests/demos).
type StaticPoolLoader struct {
	pools map[domain.QuestionType][]domain.Question
}

func NewStaticPoolLoader(pools map[domain.QuestionType][]domain.Question) *StaticPoolLoader {
	return &StaticPoolLoader{pools: pools}
}

func (l *StaticPoolLoader) Types() []domain.QuestionType {
	types := make([]domain.QuestionType, 0, len(l.pools))
	for qt := range l.pools {
		types = append(types, qt)
	}
	return types
}

func (l *StaticPoolLoader) LoadPool(_ context.Context, qt domain.QuestionType) ([]domain.Question, error) {
	return l.pools[qt], nil
}

func poolKey(qt domain.QuestionType) string {
	return "pool:" + strconv.Itoa(int(qt))
}
