package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quiz-duel-service/internal/domain"

	"go.uber.org/zap"
)

// RoundPlayer is the submission path the forfeit sweeper reuses, so forced
// submissions inherit every invariant and transition of a real one.
type RoundPlayer interface {
	Play(ctx context.Context, requester, duelID string, roundNumber int, answers []int) (domain.ViewerDuel, error)
}

// ForfeitSweeper forces a round of NoAnswer submissions for players who
// leave their opponent waiting past the deadline. Run it periodically; it
// is stateless between runs.
type ForfeitSweeper struct {
	store    DuelStore
	player   RoundPlayer
	deadline time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewForfeitSweeper(store DuelStore, player RoundPlayer, deadline time.Duration, logger *zap.Logger) *ForfeitSweeper {
	return NewForfeitSweeperWithClock(store, player, deadline, logger, time.Now)
}

// NewForfeitSweeperWithClock is for deterministic deadline tests.
func NewForfeitSweeperWithClock(store DuelStore, player RoundPlayer, deadline time.Duration, logger *zap.Logger, now func() time.Time) *ForfeitSweeper {
	return &ForfeitSweeper{store: store, player: player, deadline: deadline, now: now, logger: logger}
}

// Sweep scans in-progress duels once. A failure on one duel is logged and
// never blocks the rest of the sweep.
func (s *ForfeitSweeper) Sweep(ctx context.Context) error {
	states, err := s.store.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("list in-progress duels: %w", err)
	}
	now := s.now()
	for _, state := range states {
		round := state.Duel.CurrentRound
		for _, username := range laggingPlayers(state, now, s.deadline) {
			blanks := make([]int, len(state.Duel.Rounds[round-1]))
			for i := range blanks {
				blanks[i] = domain.NoAnswer
			}
			if _, err := s.player.Play(ctx, username, state.Duel.ID, round, blanks); err != nil {
				s.logger.Warn("forfeit submission failed",
					zap.String("duel", state.Duel.ID),
					zap.String("player", username),
					zap.Error(err))
				continue
			}
			s.logger.Info("forfeited inactive player",
				zap.String("duel", state.Duel.ID),
				zap.String("player", username),
				zap.Int("round", round))
		}
	}
	return nil
}

// laggingPlayers returns the players who still owe the current round once
// the duel has been idle past the deadline. The clock starts at the most
// recent submission by either player, or at creation if nobody has played.
// When both players are equally behind, both are eligible independently,
// in username order.
func laggingPlayers(state domain.DuelState, now time.Time, deadline time.Duration) []string {
	reference := state.Duel.CreatedAt
	for _, res := range state.Results {
		if len(res.Answers) > 0 && res.LastSubmission.After(reference) {
			reference = res.LastSubmission
		}
	}
	if now.Sub(reference) <= deadline {
		return nil
	}

	names := []string{state.Duel.Players[0], state.Duel.Players[1]}
	sort.Strings(names)
	var lagging []string
	for _, name := range names {
		if res := state.Results[name]; res != nil && len(res.Answers) < state.Duel.CurrentRound {
			lagging = append(lagging, name)
		}
	}
	return lagging
}

// RetentionSweeper purges duels that finished longer than the TTL ago.
type RetentionSweeper struct {
	store  DuelStore
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewRetentionSweeper(store DuelStore, ttl time.Duration, logger *zap.Logger) *RetentionSweeper {
	return NewRetentionSweeperWithClock(store, ttl, logger, time.Now)
}

// NewRetentionSweeperWithClock is for deterministic TTL tests.
func NewRetentionSweeperWithClock(store DuelStore, ttl time.Duration, logger *zap.Logger, now func() time.Time) *RetentionSweeper {
	return &RetentionSweeper{store: store, ttl: ttl, now: now, logger: logger}
}

func (s *RetentionSweeper) Sweep(ctx context.Context) error {
	purged, err := s.store.PurgeFinishedBefore(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return fmt.Errorf("purge finished duels: %w", err)
	}
	if purged > 0 {
		s.logger.Info("purged finished duels", zap.Int("count", purged))
	}
	return nil
}
