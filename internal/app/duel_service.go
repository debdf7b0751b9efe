package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quiz-duel-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DuelStore abstracts durable duel storage (in-memory, Postgres, etc).
// Update must execute fn as a single atomic read-modify-write on the duel
// and its two results; concurrent updates to the same duel serialize.
type DuelStore interface {
	Create(ctx context.Context, state domain.DuelState) error
	Get(ctx context.Context, duelID string) (domain.DuelState, error)
	ListByPlayer(ctx context.Context, username string) ([]domain.DuelState, error)
	ListInProgress(ctx context.Context) ([]domain.DuelState, error)
	Update(ctx context.Context, duelID string, fn func(*domain.DuelState) error) (domain.DuelState, error)
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// UserDirectory is the external user collaborator: opponent lookup plus
// win/loss counters.
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
	RecordWin(ctx context.Context, username string) error
	RecordLoss(ctx context.Context, username string) error
}

// RoundBuilder produces the rounds for a new duel. Pluggable so tests can
// inject a fixed set of rounds instead of calling the generator.
type RoundBuilder interface {
	CreateRounds(ctx context.Context, roundsPerDuel, questionsPerRound int) ([]domain.Round, error)
}

// Settings are the duel parameters captured at creation time.
type Settings struct {
	RoundsPerDuel     int
	QuestionsPerRound int
}

// DuelService contains the duel use cases: create, fetch with viewer
// formatting, and round submission with scoring and state transition.
type DuelService struct {
	store    DuelStore
	users    UserDirectory
	rounds   RoundBuilder
	settings func() Settings
	now      func() time.Time
	logger   *zap.Logger
}

func NewDuelService(store DuelStore, users UserDirectory, rounds RoundBuilder, settings func() Settings, logger *zap.Logger) *DuelService {
	return NewDuelServiceWithClock(store, users, rounds, settings, logger, time.Now)
}

// NewDuelServiceWithClock is for deterministic timestamps in tests.
func NewDuelServiceWithClock(store DuelStore, users UserDirectory, rounds RoundBuilder, settings func() Settings, logger *zap.Logger, now func() time.Time) *DuelService {
	return &DuelService{
		store:    store,
		users:    users,
		rounds:   rounds,
		settings: settings,
		now:      now,
		logger:   logger,
	}
}

// Create starts a duel between requester and opponent and returns its id.
// Round content is built with the configuration values in effect right now;
// later config changes never touch existing duels.
func (s *DuelService) Create(ctx context.Context, requester, opponent string) (string, error) {
	opponent = strings.TrimSpace(opponent)
	if opponent == "" {
		return "", domain.ErrMissingOpponent
	}
	if opponent == requester {
		return "", domain.ErrSelfDuel
	}

	exists, err := s.users.Exists(ctx, opponent)
	if err != nil {
		return "", fmt.Errorf("lookup opponent: %w", err)
	}
	if !exists {
		return "", domain.ErrOpponentNotFound
	}

	cfg := s.settings()
	rounds, err := s.rounds.CreateRounds(ctx, cfg.RoundsPerDuel, cfg.QuestionsPerRound)
	if err != nil {
		return "", err
	}

	duel := domain.Duel{
		ID:           uuid.NewString(),
		Players:      [2]string{requester, opponent},
		Rounds:       rounds,
		CurrentRound: 1,
		InProgress:   true,
		CreatedAt:    s.now(),
	}
	state := domain.DuelState{
		Duel: duel,
		Results: map[string]*domain.Result{
			requester: {Username: requester, DuelID: duel.ID},
			opponent:  {Username: opponent, DuelID: duel.ID},
		},
	}
	if err := s.store.Create(ctx, state); err != nil {
		return "", fmt.Errorf("persist duel: %w", err)
	}
	return duel.ID, nil
}

// Fetch loads a duel and renders it for the requester. Non-participants get
// ErrDuelNotFound; existence is not revealed to outsiders.
func (s *DuelService) Fetch(ctx context.Context, requester, duelID string) (domain.ViewerDuel, error) {
	state, err := s.store.Get(ctx, duelID)
	if err != nil {
		return domain.ViewerDuel{}, err
	}
	if !state.Duel.HasPlayer(requester) {
		return domain.ViewerDuel{}, domain.ErrDuelNotFound
	}
	return Project(state, requester), nil
}

// FetchAll returns every duel the requester participates in, viewer-scoped.
func (s *DuelService) FetchAll(ctx context.Context, requester string) ([]domain.ViewerDuel, error) {
	states, err := s.store.ListByPlayer(ctx, requester)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ViewerDuel, 0, len(states))
	for _, state := range states {
		views = append(views, Project(state, requester))
	}
	return views, nil
}

// Play submits the requester's answers for a round. The whole
// read-validate-append-advance sequence runs inside one atomic store
// update: two racing submissions by the same player yield exactly one
// success, and the round-advance/finish transition fires exactly once.
func (s *DuelService) Play(ctx context.Context, requester, duelID string, roundNumber int, answers []int) (domain.ViewerDuel, error) {
	var finished bool
	state, err := s.store.Update(ctx, duelID, func(st *domain.DuelState) error {
		if !st.Duel.HasPlayer(requester) {
			return domain.ErrDuelNotFound
		}
		if !st.Duel.InProgress {
			return domain.ErrDuelFinished
		}
		if roundNumber != st.Duel.CurrentRound {
			return domain.ErrWrongRound
		}
		mine := st.Results[requester]
		if len(mine.Answers) >= roundNumber {
			return domain.ErrAlreadyPlayed
		}
		if len(answers) != len(st.Duel.Rounds[roundNumber-1]) {
			return domain.ErrAnswerCount
		}

		mine.Answers = append(mine.Answers, append([]int(nil), answers...))
		mine.LastSubmission = s.now()

		theirs := st.Results[st.Duel.Opponent(requester)]
		if len(theirs.Answers) >= roundNumber {
			if roundNumber == len(st.Duel.Rounds) {
				st.Duel.InProgress = false
				finishedAt := s.now()
				st.Duel.FinishedAt = &finishedAt
				finished = true
			} else {
				st.Duel.CurrentRound++
			}
		}
		return nil
	})
	if err != nil {
		return domain.ViewerDuel{}, err
	}

	if finished {
		s.settle(ctx, state)
	}
	return Project(state, requester), nil
}

// settle records the win/loss pair after a duel completes. A tie records
// nothing. Stat failures are logged, not propagated: the submission itself
// already committed.
func (s *DuelService) settle(ctx context.Context, state domain.DuelState) {
	first, second := state.Duel.Players[0], state.Duel.Players[1]
	firstScore, secondScore := Score(state, first), Score(state, second)
	if firstScore == secondScore {
		return
	}
	winner, loser := first, second
	if secondScore > firstScore {
		winner, loser = second, first
	}
	if err := s.users.RecordWin(ctx, winner); err != nil {
		s.logger.Warn("record win failed", zap.String("duel", state.Duel.ID), zap.String("player", winner), zap.Error(err))
	}
	if err := s.users.RecordLoss(ctx, loser); err != nil {
		s.logger.Warn("record loss failed", zap.String("duel", state.Duel.ID), zap.String("player", loser), zap.Error(err))
	}
}
