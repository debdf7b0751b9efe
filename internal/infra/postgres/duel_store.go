package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quiz-duel-service/internal/domain"

	"github.com/uptrace/bun"
)

// DuelStore is the bun-backed implementation of app.DuelStore. Rounds and
// answers live as JSONB next to the relational duel/result columns. Update
// runs inside one transaction with the duel row locked, which closes the
// read-then-write race between two players submitting the same round.
type DuelStore struct {
	db *bun.DB
}

func NewDuelStore(db *bun.DB) *DuelStore {
	return &DuelStore{db: db}
}

type duelRow struct {
	bun.BaseModel `bun:"table:duels,alias:d"`

	ID           string     `bun:"id,pk"`
	PlayerA      string     `bun:"player_a"`
	PlayerB      string     `bun:"player_b"`
	Rounds       []byte     `bun:"rounds,type:jsonb"`
	CurrentRound int        `bun:"current_round"`
	InProgress   bool       `bun:"in_progress"`
	CreatedAt    time.Time  `bun:"created_at"`
	FinishedAt   *time.Time `bun:"finished_at"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:duel_results,alias:r"`

	DuelID         string    `bun:"duel_id,pk"`
	Username       string    `bun:"username,pk"`
	Answers        []byte    `bun:"answers,type:jsonb"`
	LastSubmission time.Time `bun:"last_submission"`
}

func (s *DuelStore) Create(ctx context.Context, state domain.DuelState) error {
	duel, results, err := encodeState(state)
	if err != nil {
		return err
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(duel).Exec(ctx); err != nil {
			return fmt.Errorf("insert duel: %w", err)
		}
		if _, err := tx.NewInsert().Model(&results).Exec(ctx); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
		return nil
	})
}

func (s *DuelStore) Get(ctx context.Context, duelID string) (domain.DuelState, error) {
	var row duelRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", duelID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DuelState{}, domain.ErrDuelNotFound
	}
	if err != nil {
		return domain.DuelState{}, fmt.Errorf("select duel: %w", err)
	}
	return s.assemble(ctx, s.db, row)
}

func (s *DuelStore) ListByPlayer(ctx context.Context, username string) ([]domain.DuelState, error) {
	var rows []duelRow
	err := s.db.NewSelect().Model(&rows).
		Where("player_a = ? OR player_b = ?", username, username).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select duels: %w", err)
	}
	return s.assembleAll(ctx, rows)
}

func (s *DuelStore) ListInProgress(ctx context.Context) ([]domain.DuelState, error) {
	var rows []duelRow
	err := s.db.NewSelect().Model(&rows).
		Where("in_progress").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select duels: %w", err)
	}
	return s.assembleAll(ctx, rows)
}

func (s *DuelStore) Update(ctx context.Context, duelID string, fn func(*domain.DuelState) error) (domain.DuelState, error) {
	var committed domain.DuelState
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var row duelRow
		err := tx.NewSelect().Model(&row).Where("id = ?", duelID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrDuelNotFound
		}
		if err != nil {
			return fmt.Errorf("lock duel: %w", err)
		}

		state, err := s.assemble(ctx, tx, row)
		if err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}

		duel, results, err := encodeState(state)
		if err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(duel).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update duel: %w", err)
		}
		for i := range results {
			if _, err := tx.NewUpdate().Model(&results[i]).WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("update result: %w", err)
			}
		}
		committed = state
		return nil
	})
	if err != nil {
		return domain.DuelState{}, err
	}
	return committed, nil
}

func (s *DuelStore) PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	// duel_results rows go with the duel via ON DELETE CASCADE
	res, err := s.db.NewDelete().Model((*duelRow)(nil)).
		Where("NOT in_progress").
		Where("finished_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete duels: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(purged), nil
}

func (s *DuelStore) assembleAll(ctx context.Context, rows []duelRow) ([]domain.DuelState, error) {
	states := make([]domain.DuelState, 0, len(rows))
	for _, row := range rows {
		state, err := s.assemble(ctx, s.db, row)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *DuelStore) assemble(ctx context.Context, db bun.IDB, row duelRow) (domain.DuelState, error) {
	var resRows []resultRow
	err := db.NewSelect().Model(&resRows).Where("duel_id = ?", row.ID).Scan(ctx)
	if err != nil {
		return domain.DuelState{}, fmt.Errorf("select results: %w", err)
	}
	return decodeState(row, resRows)
}

func encodeState(state domain.DuelState) (*duelRow, []resultRow, error) {
	rounds, err := json.Marshal(state.Duel.Rounds)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal rounds: %w", err)
	}
	duel := &duelRow{
		ID:           state.Duel.ID,
		PlayerA:      state.Duel.Players[0],
		PlayerB:      state.Duel.Players[1],
		Rounds:       rounds,
		CurrentRound: state.Duel.CurrentRound,
		InProgress:   state.Duel.InProgress,
		CreatedAt:    state.Duel.CreatedAt,
		FinishedAt:   state.Duel.FinishedAt,
	}
	results := make([]resultRow, 0, len(state.Results))
	for _, res := range state.Results {
		answers, err := json.Marshal(res.Answers)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal answers: %w", err)
		}
		results = append(results, resultRow{
			DuelID:         res.DuelID,
			Username:       res.Username,
			Answers:        answers,
			LastSubmission: res.LastSubmission,
		})
	}
	return duel, results, nil
}

func decodeState(row duelRow, resRows []resultRow) (domain.DuelState, error) {
	var rounds []domain.Round
	if err := json.Unmarshal(row.Rounds, &rounds); err != nil {
		return domain.DuelState{}, fmt.Errorf("unmarshal rounds: %w", err)
	}
	state := domain.DuelState{
		Duel: domain.Duel{
			ID:           row.ID,
			Players:      [2]string{row.PlayerA, row.PlayerB},
			Rounds:       rounds,
			CurrentRound: row.CurrentRound,
			InProgress:   row.InProgress,
			CreatedAt:    row.CreatedAt,
			FinishedAt:   row.FinishedAt,
		},
		Results: make(map[string]*domain.Result, len(resRows)),
	}
	for _, res := range resRows {
		var answers [][]int
		if err := json.Unmarshal(res.Answers, &answers); err != nil {
			return domain.DuelState{}, fmt.Errorf("unmarshal answers: %w", err)
		}
		state.Results[res.Username] = &domain.Result{
			Username:       res.Username,
			DuelID:         res.DuelID,
			Answers:        answers,
			LastSubmission: res.LastSubmission,
		}
	}
	return state, nil
}
