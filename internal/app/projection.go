package app

import "quiz-duel-service/internal/domain"

// Project renders one canonical duel for a specific viewer. Pure function,
// no side effects: all information hiding between opponents happens here.
//
// Visibility per round, relative to the viewer:
//   - settled (before the current round, or any round once the duel is
//     over): full content plus both players' answers;
//   - future: type and title only, so nobody reads ahead;
//   - current, viewer not yet committed: the question without the correct
//     index or the opponent's choice;
//   - current, viewer committed: full content plus the viewer's own answer,
//     the opponent's stays hidden until the round settles.
func Project(state domain.DuelState, viewer string) domain.ViewerDuel {
	duel := state.Duel
	opponent := duel.Opponent(viewer)
	mine := state.Results[viewer]
	theirs := state.Results[opponent]

	view := domain.ViewerDuel{
		ID:            duel.ID,
		Opponent:      opponent,
		CurrentRound:  duel.CurrentRound,
		InProgress:    duel.InProgress,
		UserScore:     Score(state, viewer),
		OpponentScore: Score(state, opponent),
		Rounds:        make([][]domain.QuestionView, len(duel.Rounds)),
	}

	for r, round := range duel.Rounds {
		number := r + 1
		views := make([]domain.QuestionView, len(round))
		for q, question := range round {
			qv := domain.QuestionView{Type: question.Type, Title: question.Title}
			switch {
			case !duel.InProgress || number < duel.CurrentRound:
				qv = fullView(question)
				qv.UserAnswer = answerAt(mine, r, q)
				qv.OpponentAnswer = answerAt(theirs, r, q)
			case number > duel.CurrentRound:
				// type and title only
			case mine != nil && len(mine.Answers) >= number:
				qv = fullView(question)
				qv.UserAnswer = answerAt(mine, r, q)
			default:
				qv.Subject = question.Subject
				qv.Wording = question.Wording
				qv.Answers = append([]string(nil), question.Answers...)
			}
			views[q] = qv
		}
		view.Rounds[r] = views
	}
	return view
}

// Score counts the player's correct answers over their submitted rounds,
// capped at the current round while the duel runs. A NoAnswer entry never
// matches the correct index.
func Score(state domain.DuelState, username string) int {
	res := state.Results[username]
	if res == nil {
		return 0
	}
	limit := len(res.Answers)
	if state.Duel.InProgress && state.Duel.CurrentRound < limit {
		limit = state.Duel.CurrentRound
	}
	total := 0
	for r := 0; r < limit; r++ {
		round := state.Duel.Rounds[r]
		for q, answer := range res.Answers[r] {
			if q < len(round) && answer == round[q].GoodAnswer {
				total++
			}
		}
	}
	return total
}

func fullView(q domain.Question) domain.QuestionView {
	good := q.GoodAnswer
	return domain.QuestionView{
		Type:       q.Type,
		Title:      q.Title,
		Subject:    q.Subject,
		Wording:    q.Wording,
		Answers:    append([]string(nil), q.Answers...),
		GoodAnswer: &good,
	}
}

func answerAt(res *domain.Result, round, question int) *int {
	if res == nil || round >= len(res.Answers) || question >= len(res.Answers[round]) {
		return nil
	}
	answer := res.Answers[round][question]
	return &answer
}
