package domain

import "errors"

var (
	// ErrDuelNotFound covers both a missing duel and a non-participant
	// requester; existence is not revealed to outsiders.
	ErrDuelNotFound = errors.New("duel not found")
	// ErrOpponentNotFound is returned when the named opponent does not exist.
	ErrOpponentNotFound = errors.New("opponent not found")
	// ErrMissingOpponent is returned when no opponent name was supplied.
	ErrMissingOpponent = errors.New("opponent name is required")
	// ErrSelfDuel is returned when a user challenges themselves.
	ErrSelfDuel = errors.New("cannot duel yourself")
	// ErrDuelFinished rejects submissions to a completed duel.
	ErrDuelFinished = errors.New("duel already finished")
	// ErrWrongRound rejects submissions for any round but the current one.
	ErrWrongRound = errors.New("not the current round")
	// ErrAlreadyPlayed rejects a second submission for the same round.
	ErrAlreadyPlayed = errors.New("round already played")
	// ErrAnswerCount rejects submissions whose answer count does not match
	// the round's question count.
	ErrAnswerCount = errors.New("wrong number of answers")
	// ErrNotEnoughData signals the content store cannot produce the
	// requested questions. RoundFactory treats it as a recoverable branch
	// per type and only surfaces it once every type is exhausted.
	ErrNotEnoughData = errors.New("not enough data to generate questions")
	// ErrUserNotFound indicates an unknown username in the directory.
	ErrUserNotFound = errors.New("user not found")
)
