package redis

import (
	"context"
	"testing"
	"time"

	"survey-session-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{questions: sampleQuestions()}
	repo := NewQuestionRepository(newClient(mr), loader, time.Minute)

	first, err := repo.QuestionsInOrder(context.Background(), "abc123XY")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(first) != 2 || first[0].ID != 1 {
		t.Fatalf("unexpected questions: %+v", first)
	}
	if !mr.Exists("abc123XY:questions") {
		t.Fatalf("expected cached key in redis")
	}

	// Second call should hit the cache, loader not incremented.
	second, err := repo.QuestionsInOrder(context.Background(), "abc123XY")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(second) != len(first) {
		t.Fatalf("cache returned different list: %+v", second)
	}
}

type countingLoader struct {
	questions []domain.Question
	calls     int
}

func (l *countingLoader) LoadQuestions(context.Context, string) ([]domain.Question, error) {
	l.calls++
	return l.questions, nil
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:   1,
			Type: domain.SingleAnswer,
			Text: "What is 2 + 2?",
			Answers: []domain.Answer{
				{ID: 1, QuestionID: 1, Text: "3", Correct: false},
				{ID: 2, QuestionID: 1, Text: "4", Correct: true},
			},
		},
		{
			ID:   2,
			Type: domain.Open,
			Text: "What did you think of the course?",
		},
	}
}
