package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-duel-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads per-type question JSONB from Postgres. The question
// bank caches and samples from the pools this returns.
type QuestionLoader struct {
	pool  *pgxpool.Pool
	types []domain.QuestionType
}

func NewQuestionLoader(pool *pgxpool.Pool, types []domain.QuestionType) *QuestionLoader {
	return &QuestionLoader{pool: pool, types: types}
}

func (l *QuestionLoader) Types() []domain.QuestionType {
	return append([]domain.QuestionType(nil), l.types...)
}

func (l *QuestionLoader) LoadPool(ctx context.Context, qt domain.QuestionType) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions WHERE qtype=$1`, int(qt))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var pool []domain.Question
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var question domain.Question
		if err := json.Unmarshal(raw, &question); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		pool = append(pool, question)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}
	return pool, nil
}
