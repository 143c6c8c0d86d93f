package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"survey-session-service/internal/app"
	"survey-session-service/internal/domain"
)

// Scoring is exact-coverage: a closed question counts as correct only when the
// selection equals the correct set, so subsets and supersets both score false.
func TestEndSessionScoring(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)
	code := startSession(t, service, 1)

	// q1 single answer: alice right, bob wrong.
	mustAnswer(t, service, aliceEmail, code, 2)
	mustAnswer(t, service, bobEmail, code, 1)

	// q2 multi answer (correct set {4,5}): alice exact, bob subset,
	// mallory superset.
	mustAnswer(t, service, aliceEmail, code, 4, 5)
	mustAnswer(t, service, bobEmail, code, 4)
	mustAnswer(t, service, mallryEmail, code, 4, 5, 6)

	// q3 open restricted: scored as text only, no correctness flag.
	if err := service.OpenAnswer(ctx, aliceEmail, code, 3, "great"); err != nil {
		t.Fatalf("open answer: %v", err)
	}

	serialized, err := service.EndSession(ctx, code)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}

	var results domain.SessionResults
	if err := json.Unmarshal(serialized, &results); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	assertCorrect(t, results, 2, 1, true)  // alice q1
	assertCorrect(t, results, 3, 1, false) // bob q1
	assertCorrect(t, results, 2, 2, true)  // alice q2 exact
	assertCorrect(t, results, 3, 2, false) // bob q2 subset
	assertCorrect(t, results, 4, 2, false) // mallory q2 superset

	openResult, ok := results[2][3]
	if !ok {
		t.Fatalf("expected open answer for alice in snapshot")
	}
	if openResult.CorrectlyAnswered != nil {
		t.Fatalf("open question must not carry a correctness flag, got %v", *openResult.CorrectlyAnswered)
	}
	if len(openResult.AnswersText) != 1 || openResult.AnswersText[0] != "great" {
		t.Fatalf("expected open answer text, got %v", openResult.AnswersText)
	}
	if got := results[2][2].QuestionText; got != "Which are prime?" {
		t.Fatalf("expected question text in snapshot, got %q", got)
	}

	// The persisted snapshot is byte-for-byte what the owner receives.
	saved, ok := store.Snapshot(code)
	if !ok {
		t.Fatalf("expected snapshot persisted")
	}
	if !bytes.Equal(saved, serialized) {
		t.Fatalf("persisted snapshot differs from returned one")
	}

	// A snapshot is written once per session.
	if _, err := service.EndSession(ctx, code); !errors.Is(err, domain.ErrResultsExist) {
		t.Fatalf("expected ErrResultsExist on second end, got %v", err)
	}
}

func TestEndSessionWithoutResponses(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	serialized, err := service.EndSession(ctx, code)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	var results domain.SessionResults
	if err := json.Unmarshal(serialized, &results); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty snapshot, got %v", results)
	}
}

func mustAnswer(t *testing.T, service *app.SessionService, email, code string, answerIDs ...int64) {
	t.Helper()
	if err := service.Answer(context.Background(), email, code, answerIDs); err != nil {
		t.Fatalf("answer %v for %s: %v", answerIDs, email, err)
	}
}

func assertCorrect(t *testing.T, results domain.SessionResults, userID, questionID int64, want bool) {
	t.Helper()
	result, ok := results[userID][questionID]
	if !ok {
		t.Fatalf("missing result for user %d question %d", userID, questionID)
	}
	if result.CorrectlyAnswered == nil {
		t.Fatalf("missing correctness flag for user %d question %d", userID, questionID)
	}
	if *result.CorrectlyAnswered != want {
		t.Fatalf("user %d question %d: correctly_answered=%v, want %v", userID, questionID, *result.CorrectlyAnswered, want)
	}
}
