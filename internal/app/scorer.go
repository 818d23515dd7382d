package app

import (
	"context"

	"superexam-session-service/internal/domain"
)

// Submit grades the session against the authoritative questions and flips it terminal.
// Repeated or concurrent calls return the result stored by whichever call won the transition.
func (s *ExamService) Submit(ctx context.Context, sessionID string) (domain.Result, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	if session.IsTerminal() {
		return storedResult(session), nil
	}

	questions, err := s.questionsOf(ctx, session.DocumentID)
	if err != nil {
		return domain.Result{}, err
	}
	result, _ := Grade(session, questions)

	stored, won, err := s.sessions.Complete(ctx, sessionID, s.now(), result)
	if err != nil {
		return domain.Result{}, s.dependency("complete session", err)
	}
	final := storedResult(stored)
	s.log.Info().
		Str("session_id", sessionID).
		Int("score", final.Score).
		Int("correct", final.CorrectCount).
		Int("total", final.TotalQuestions).
		Bool("won", won).
		Msg("session submitted")
	return final, nil
}

// Grade scores every question of the session. Questions missing from the map or left
// unanswered count as incorrect.
func Grade(session domain.Session, questions map[string]domain.Question) (domain.Result, []domain.QuestionOutcome) {
	outcomes := make([]domain.QuestionOutcome, 0, len(session.QuestionIDs))
	correct := 0
	for _, id := range session.QuestionIDs {
		answer, answered := session.Answers[id]
		outcome := domain.QuestionOutcome{QuestionID: id, Answered: answered && !answer.IsEmpty()}
		if answered {
			outcome.Selected = answer.Selected()
		}
		if q, ok := questions[id]; ok {
			outcome.CorrectPositions = q.CorrectPositions()
			if answered {
				outcome.Correct = IsCorrect(q, answer)
			}
		}
		if outcome.Correct {
			correct++
		}
		outcomes = append(outcomes, outcome)
	}
	total := len(session.QuestionIDs)
	return domain.Result{
		Score:          Percent(correct, total),
		CorrectCount:   correct,
		TotalQuestions: total,
	}, outcomes
}

// IsCorrect applies the grading rule for one question. Single select needs the chosen choice's
// index to be the sole correct answer; multi select needs the chosen index set to equal the
// correct set exactly. Answers of the wrong kind or with out-of-range positions are incorrect.
func IsCorrect(q domain.Question, answer domain.Answer) bool {
	switch q.EffectiveType() {
	case domain.SingleSelect:
		if answer.Kind != domain.AnswerSingle || len(q.CorrectAnswers) != 1 {
			return false
		}
		idx, ok := q.IndexAt(answer.Position)
		return ok && idx == q.CorrectAnswers[0]
	case domain.MultiSelect:
		if answer.Kind != domain.AnswerMulti || len(answer.Positions) == 0 {
			return false
		}
		chosen := make(map[domain.ChoiceIndex]struct{}, len(answer.Positions))
		for _, pos := range answer.Positions {
			idx, ok := q.IndexAt(pos)
			if !ok {
				return false
			}
			chosen[idx] = struct{}{}
		}
		want := make(map[domain.ChoiceIndex]struct{}, len(q.CorrectAnswers))
		for _, idx := range q.CorrectAnswers {
			want[idx] = struct{}{}
		}
		if len(chosen) != len(want) {
			return false
		}
		for idx := range chosen {
			if _, ok := want[idx]; !ok {
				return false
			}
		}
		return true
	}
	return false
}

// Percent is round(100*correct/total) with halves rounded up, in integer arithmetic.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

func storedResult(session domain.Session) domain.Result {
	if session.Result == nil {
		return domain.Result{TotalQuestions: len(session.QuestionIDs)}
	}
	return *session.Result
}
