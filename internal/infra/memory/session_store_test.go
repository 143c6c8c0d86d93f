package memory_test

import (
	"context"
	"errors"
	"testing"

	"survey-session-service/internal/domain"
	"survey-session-service/internal/infra/memory"
)

func storeFixture() memory.Fixture {
	return memory.Fixture{
		Users: []domain.User{
			{ID: 1, Email: "owner@example.org"},
			{ID: 2, Email: "user@example.org"},
		},
		Questions: []domain.Question{
			{ID: 7, Type: domain.SingleAnswer, Text: "Pick one", Answers: []domain.Answer{
				{ID: 70, Text: "no"},
				{ID: 71, Text: "yes", Correct: true},
			}},
			{ID: 3, Type: domain.Open, Text: "Say anything"},
		},
		Surveys: []memory.SurveyFixture{
			{Survey: domain.Survey{ID: 1, UserID: 1, Title: "S"}, QuestionIDs: []int64{7, 3}},
		},
		Templates: []domain.SessionTemplate{
			{ID: 1, SurveyID: 1, Name: "T", Type: domain.Piloted, IsPublic: true},
		},
	}
}

func newStoreWithSession(t *testing.T) (*memory.SessionStore, string) {
	t.Helper()
	store := memory.NewSessionStore(storeFixture())
	inst, err := store.CreateSession(context.Background(), "owner@example.org", 1, "CODE0001")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return store, inst.JoinCode
}

func TestAdvanceQuestionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store, code := newStoreWithSession(t)

	applied, err := store.AdvanceQuestion(ctx, code, nil, 3)
	if err != nil || !applied {
		t.Fatalf("expected first advance to apply, got applied=%v err=%v", applied, err)
	}

	// Stale reads lose the race: the pointer is no longer nil.
	applied, err = store.AdvanceQuestion(ctx, code, nil, 7)
	if err != nil || applied {
		t.Fatalf("expected stale advance rejected, got applied=%v err=%v", applied, err)
	}
	sess, err := store.FindSession(ctx, code)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if sess.CurrentQuestionID == nil || *sess.CurrentQuestionID != 3 {
		t.Fatalf("expected pointer at 3, got %v", sess.CurrentQuestionID)
	}

	from := int64(3)
	applied, err = store.AdvanceQuestion(ctx, code, &from, 7)
	if err != nil || !applied {
		t.Fatalf("expected matching advance to apply, got applied=%v err=%v", applied, err)
	}
}

func TestInsertResponsesRejectsDuplicateAnswer(t *testing.T) {
	ctx := context.Background()
	store, code := newStoreWithSession(t)

	if err := store.InsertResponses(ctx, "user@example.org", code, []int64{71}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.InsertResponses(ctx, "user@example.org", code, []int64{71}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	if err := store.InsertResponses(ctx, "user@example.org", code, []int64{999}); !errors.Is(err, domain.ErrAnswerDoesNotExist) {
		t.Fatalf("expected ErrAnswerDoesNotExist, got %v", err)
	}

	answered, err := store.HasAnswered(ctx, "user@example.org", code, 7)
	if err != nil || !answered {
		t.Fatalf("expected question 7 answered, got %v err=%v", answered, err)
	}
}

func TestSaveSnapshotOnce(t *testing.T) {
	ctx := context.Background()
	store, code := newStoreWithSession(t)

	if err := store.SaveSnapshot(ctx, code, []byte(`{}`)); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := store.SaveSnapshot(ctx, code, []byte(`{"a":1}`)); !errors.Is(err, domain.ErrResultsExist) {
		t.Fatalf("expected ErrResultsExist, got %v", err)
	}
	saved, ok := store.Snapshot(code)
	if !ok || string(saved) != `{}` {
		t.Fatalf("expected first snapshot kept, got %q ok=%v", saved, ok)
	}

	sess, err := store.FindSession(ctx, code)
	if err != nil || sess.State != domain.StateEnded {
		t.Fatalf("expected ended state after snapshot, got %v err=%v", sess.State, err)
	}
}

func TestLoadQuestionsOrderedByID(t *testing.T) {
	ctx := context.Background()
	store, code := newStoreWithSession(t)

	questions, err := store.LoadQuestions(ctx, code)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != 3 || questions[1].ID != 7 {
		t.Fatalf("expected questions ordered by id, got %+v", questions)
	}
}

func TestPresenceStore(t *testing.T) {
	ctx := context.Background()
	p := memory.NewPresenceStore()

	if err := p.Join(ctx, "CODE", "a@example.org"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := p.Join(ctx, "CODE", "b@example.org"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if count, _ := p.Count(ctx, "CODE"); count != 2 {
		t.Fatalf("expected 2 members, got %d", count)
	}
	if present, _ := p.IsPresent(ctx, "CODE", "a@example.org"); !present {
		t.Fatalf("expected a present")
	}

	if err := p.Leave(ctx, "CODE", "a@example.org"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if present, _ := p.IsPresent(ctx, "CODE", "a@example.org"); present {
		t.Fatalf("expected a gone after leave")
	}

	p.SetOwnerConn(ctx, "CODE", "conn-1")
	p.SetOwnerConn(ctx, "CODE", "conn-2")
	if conn, _ := p.OwnerConn(ctx, "CODE"); conn != "conn-2" {
		t.Fatalf("expected last owner conn to win, got %q", conn)
	}

	if err := p.Clear(ctx, "CODE"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if count, _ := p.Count(ctx, "CODE"); count != 0 {
		t.Fatalf("expected empty room after clear, got %d", count)
	}
	if conn, _ := p.OwnerConn(ctx, "CODE"); conn != "" {
		t.Fatalf("expected owner conn cleared, got %q", conn)
	}
}
