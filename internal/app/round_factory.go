package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"quiz-duel-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

// QuestionGenerator produces question content. Generate either returns one
// question of the given type or domain.ErrNotEnoughData when the content
// store cannot support that type.
type QuestionGenerator interface {
	Types() []domain.QuestionType
	Generate(ctx context.Context, qt domain.QuestionType) (domain.Question, error)
}

// RoundFactory builds type-homogeneous rounds, drawing types in random
// order and skipping types the generator cannot satisfy.
type RoundFactory struct {
	generator QuestionGenerator

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRoundFactory(generator QuestionGenerator) *RoundFactory {
	return &RoundFactory{
		generator: generator,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateRounds collects roundsPerDuel rounds of questionsPerRound questions
// each. Types are shuffled and popped one at a time; a type the generator
// rejects with ErrNotEnoughData is discarded and the next one tried, so a
// duel degrades gracefully when parts of the content store are thin. Only
// exhausting the whole type pool surfaces ErrNotEnoughData.
func (f *RoundFactory) CreateRounds(ctx context.Context, roundsPerDuel, questionsPerRound int) ([]domain.Round, error) {
	pool := append([]domain.QuestionType(nil), f.generator.Types()...)
	f.mu.Lock()
	f.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	f.mu.Unlock()

	rounds := make([]domain.Round, 0, roundsPerDuel)
	for _, qt := range pool {
		if len(rounds) == roundsPerDuel {
			break
		}
		round, err := f.buildRound(ctx, qt, questionsPerRound)
		if errors.Is(err, domain.ErrNotEnoughData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, round)
	}
	if len(rounds) < roundsPerDuel {
		return nil, domain.ErrNotEnoughData
	}
	return rounds, nil
}

func (f *RoundFactory) buildRound(ctx context.Context, qt domain.QuestionType, questions int) (domain.Round, error) {
	round := make(domain.Round, questions)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < questions; i++ {
		i := i
		g.Go(func() error {
			question, err := f.generator.Generate(ctx, qt)
			if err != nil {
				return err
			}
			round[i] = question
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return round, nil
}
