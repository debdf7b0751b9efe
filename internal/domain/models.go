package domain

import "time"

// NoAnswer is the sentinel answer index recorded when a player gives no
// answer for a question (forfeit). It never matches GoodAnswer.
const NoAnswer = -1

// QuestionType identifies one of the question generators (~1..12).
type QuestionType int

// Question is an MCQ with exactly four choices. Immutable once generated.
type Question struct {
	Type       QuestionType `json:"type"`
	Title      string       `json:"title"`
	Subject    string       `json:"subject"`
	Wording    string       `json:"wording"`
	Answers    []string     `json:"answers"`
	GoodAnswer int          `json:"goodAnswer"`
}

// Round is an ordered batch of same-type questions.
type Round []Question

// Duel is a two-player asynchronous quiz match. Rounds are fixed at
// creation; CurrentRound is 1-based and only advances once both players
// have submitted it.
type Duel struct {
	ID           string     `json:"id"`
	Players      [2]string  `json:"players"`
	Rounds       []Round    `json:"rounds"`
	CurrentRound int        `json:"currentRound"`
	InProgress   bool       `json:"inProgress"`
	CreatedAt    time.Time  `json:"createdAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Result holds one player's submissions for a duel: one answer slice per
// round the player has already submitted.
type Result struct {
	Username       string    `json:"username"`
	DuelID         string    `json:"duelId"`
	Answers        [][]int   `json:"answers"`
	LastSubmission time.Time `json:"lastSubmission"`
}

// DuelState bundles a duel with both players' results. It is the unit of
// atomic read-modify-write in the store.
type DuelState struct {
	Duel    Duel
	Results map[string]*Result
}

// HasPlayer reports whether username is one of the two participants.
func (d Duel) HasPlayer(username string) bool {
	return d.Players[0] == username || d.Players[1] == username
}

// Opponent returns the other participant's username.
func (d Duel) Opponent(username string) string {
	if d.Players[0] == username {
		return d.Players[1]
	}
	return d.Players[0]
}

// Clone deep-copies the state so callers can mutate without aliasing the
// stored record.
func (s DuelState) Clone() DuelState {
	out := DuelState{Duel: s.Duel, Results: make(map[string]*Result, len(s.Results))}
	out.Duel.Rounds = make([]Round, len(s.Duel.Rounds))
	for i, round := range s.Duel.Rounds {
		out.Duel.Rounds[i] = append(Round(nil), round...)
	}
	if s.Duel.FinishedAt != nil {
		t := *s.Duel.FinishedAt
		out.Duel.FinishedAt = &t
	}
	for name, res := range s.Results {
		copied := *res
		copied.Answers = make([][]int, len(res.Answers))
		for i, answers := range res.Answers {
			copied.Answers[i] = append([]int(nil), answers...)
		}
		out.Results[name] = &copied
	}
	return out
}

// ViewerDuel is the requester-specific rendering of a duel. The same
// stored duel renders differently depending on who asks and what they have
// already committed to.
type ViewerDuel struct {
	ID            string           `json:"id"`
	Opponent      string           `json:"opponent"`
	CurrentRound  int              `json:"currentRound"`
	InProgress    bool             `json:"inProgress"`
	UserScore     int              `json:"userScore"`
	OpponentScore int              `json:"opponentScore"`
	Rounds        [][]QuestionView `json:"rounds"`
}

// QuestionView is a visibility-scoped question. Optional fields are
// pointers so a legitimate index 0 survives omitempty.
type QuestionView struct {
	Type           QuestionType `json:"type"`
	Title          string       `json:"title"`
	Subject        string       `json:"subject,omitempty"`
	Wording        string       `json:"wording,omitempty"`
	Answers        []string     `json:"answers,omitempty"`
	GoodAnswer     *int         `json:"goodAnswer,omitempty"`
	UserAnswer     *int         `json:"userAnswer,omitempty"`
	OpponentAnswer *int         `json:"opponentAnswer,omitempty"`
}
