package app

import (
	"context"
	"encoding/json"
	"fmt"

	"survey-session-service/internal/domain"
)

// aggregateResults joins closed and open responses against question metadata
// and folds them into one per-user, per-question scoring structure.
func (s *SessionService) aggregateResults(ctx context.Context, joinCode string) ([]byte, error) {
	closed, err := s.store.ClosedResponses(ctx, joinCode)
	if err != nil {
		return nil, fmt.Errorf("load closed responses: %w", err)
	}
	open, err := s.store.OpenResponses(ctx, joinCode)
	if err != nil {
		return nil, fmt.Errorf("load open responses: %w", err)
	}

	grouped := make(map[int64]map[int64][]domain.ResponseRow)
	for _, row := range append(closed, open...) {
		byQuestion, ok := grouped[row.UserID]
		if !ok {
			byQuestion = make(map[int64][]domain.ResponseRow)
			grouped[row.UserID] = byQuestion
		}
		byQuestion[row.QuestionID] = append(byQuestion[row.QuestionID], row)
	}

	out := make(domain.SessionResults, len(grouped))
	for userID, byQuestion := range grouped {
		userResults := make(map[int64]domain.QuestionResult, len(byQuestion))
		for questionID, rows := range byQuestion {
			result := domain.QuestionResult{
				QuestionText: rows[0].QuestionText,
				AnswersText:  answersText(rows),
			}
			if rows[0].QuestionType.Closed() {
				wanted, err := s.store.CorrectAnswerCount(ctx, questionID)
				if err != nil {
					return nil, fmt.Errorf("count correct answers: %w", err)
				}
				correct := correctlyAnswered(rows, wanted)
				result.CorrectlyAnswered = &correct
			}
			userResults[questionID] = result
		}
		out[userID] = userResults
	}

	serialized, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("serialize results: %w", err)
	}
	return serialized, nil
}

// correctlyAnswered scores one user's selections for a closed question:
// correct iff no incorrect answer was selected and every correct answer was,
// i.e. the selection covers the correct set exactly.
func correctlyAnswered(rows []domain.ResponseRow, wanted int) bool {
	selectedCorrect := 0
	for _, row := range rows {
		if row.Correct == nil || !*row.Correct {
			return false
		}
		selectedCorrect++
	}
	return selectedCorrect == wanted
}

func answersText(rows []domain.ResponseRow) []string {
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.AnswerText != "" {
			texts = append(texts, row.AnswerText)
		}
	}
	return texts
}
