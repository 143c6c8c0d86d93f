package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"survey-session-service/internal/app"
	"survey-session-service/internal/domain"
	"survey-session-service/internal/infra/memory"
)

const (
	ownerEmail  = "teacher@example.org"
	aliceEmail  = "alice@example.org"
	bobEmail    = "bob@example.org"
	mallryEmail = "mallory@example.org"
)

// fixture: q1 single answer (a2 correct), q2 multi answer (a4+a5 correct of
// four options), q3 open restricted, q4 open.
func testFixture() memory.Fixture {
	return memory.Fixture{
		Users: []domain.User{
			{ID: 1, Email: ownerEmail},
			{ID: 2, Email: aliceEmail},
			{ID: 3, Email: bobEmail},
			{ID: 4, Email: mallryEmail},
		},
		Questions: []domain.Question{
			{
				ID: 1, Type: domain.SingleAnswer, Text: "What is 2 + 2?",
				Answers: []domain.Answer{
					{ID: 1, Text: "3"},
					{ID: 2, Text: "4", Correct: true},
					{ID: 3, Text: "5"},
				},
			},
			{
				ID: 2, Type: domain.MultipleAnswers, Text: "Which are prime?",
				Answers: []domain.Answer{
					{ID: 4, Text: "2", Correct: true},
					{ID: 5, Text: "3", Correct: true},
					{ID: 6, Text: "4"},
					{ID: 7, Text: "6"},
				},
			},
			{ID: 3, Type: domain.OpenRestricted, Text: "One word summary?"},
			{ID: 4, Type: domain.Open, Text: "Any other feedback?"},
		},
		Surveys: []memory.SurveyFixture{
			{Survey: domain.Survey{ID: 1, UserID: 1, Title: "Demo"}, QuestionIDs: []int64{1, 2, 3, 4}},
		},
		Templates: []domain.SessionTemplate{
			{ID: 1, SurveyID: 1, Name: "Public run", Type: domain.Piloted, IsPublic: true},
			{ID: 2, SurveyID: 1, Name: "Restricted run", Type: domain.Piloted, IsPublic: false},
		},
		Groups: []memory.GroupFixture{
			{ID: 1, Members: []string{aliceEmail}},
		},
		AuthorisedGroups: map[int64]int64{2: 1},
	}
}

func newTestService(t *testing.T) (*app.SessionService, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore(testFixture())
	questions := memory.NewQuestionRepository(store, 5*time.Minute)
	service := app.NewSessionService(store, questions, memory.NewPresenceStore(), pinnedCode("JOINCODE"))
	return service, store
}

func pinnedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func startSession(t *testing.T, service *app.SessionService, templateID int64) string {
	t.Helper()
	inst, err := service.StartSession(context.Background(), ownerEmail, templateID)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return inst.JoinCode
}

func TestStartSessionOwnership(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	inst, err := service.StartSession(ctx, ownerEmail, 1)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if inst.JoinCode != "JOINCODE" {
		t.Fatalf("expected pinned join code, got %q", inst.JoinCode)
	}
	if inst.State != domain.StateJoinable {
		t.Fatalf("expected joinable state, got %v", inst.State)
	}

	if _, err := service.StartSession(ctx, aliceEmail, 1); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := service.StartSession(ctx, ownerEmail, 99); !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestJoinRolesAndPresence(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	role, err := service.Join(ctx, ownerEmail, code, "conn-owner")
	if err != nil || role != app.RoleOwner {
		t.Fatalf("expected owner join, got role=%v err=%v", role, err)
	}
	ownerConn, err := service.OwnerConn(ctx, code)
	if err != nil || ownerConn != "conn-owner" {
		t.Fatalf("expected owner conn recorded, got %q err=%v", ownerConn, err)
	}

	role, err = service.Join(ctx, aliceEmail, code, "conn-alice")
	if err != nil || role != app.RoleParticipant {
		t.Fatalf("expected participant join, got role=%v err=%v", role, err)
	}
	if _, err := service.Join(ctx, aliceEmail, code, "conn-alice2"); !errors.Is(err, domain.ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
	count, err := service.ParticipantCount(ctx, code)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 participant, got %d err=%v", count, err)
	}

	if _, err := service.Join(ctx, bobEmail, "NOPE1234", "conn-bob"); !errors.Is(err, domain.ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable for unknown code, got %v", err)
	}

	if err := service.Leave(ctx, aliceEmail, code); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := service.Join(ctx, aliceEmail, code, "conn-alice3"); err != nil {
		t.Fatalf("expected rejoin after leave, got %v", err)
	}
}

func TestJoinRestrictedByGroup(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 2)

	if _, err := service.Join(ctx, aliceEmail, code, "c1"); err != nil {
		t.Fatalf("expected group member allowed, got %v", err)
	}
	if _, err := service.Join(ctx, bobEmail, code, "c2"); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed for non-member, got %v", err)
	}
}

func TestJoinableLifecycle(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	if _, err := service.Join(ctx, aliceEmail, code, "c1"); err != nil {
		t.Fatalf("join: %v", err)
	}

	// First advance marks the session started: no more joins.
	if _, err := service.NextQuestion(ctx, code); err != nil {
		t.Fatalf("next question: %v", err)
	}
	if _, err := service.Join(ctx, bobEmail, code, "c2"); !errors.Is(err, domain.ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable after start, got %v", err)
	}

	if _, err := service.EndSession(ctx, code); err != nil {
		t.Fatalf("end session: %v", err)
	}
	// Ended is permanent.
	if _, err := service.Join(ctx, bobEmail, code, "c3"); !errors.Is(err, domain.ErrNotJoinable) {
		t.Fatalf("expected ErrNotJoinable after end, got %v", err)
	}
	if _, err := service.NextQuestion(ctx, code); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected ErrSessionEnded, got %v", err)
	}
}

func TestSequencerForwardOnlyAndExhaustion(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	var seen []int64
	for i := 0; i < 4; i++ {
		q, err := service.NextQuestion(ctx, code)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if q == nil {
			t.Fatalf("unexpected nil question at advance %d", i)
		}
		seen = append(seen, q.ID)
	}
	if len(seen) != 4 {
		t.Fatalf("expected all 4 questions, got %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] <= seen[i-1] {
			t.Fatalf("expected forward-only ordering, got %v", seen)
		}
	}

	// Exhausted lists keep returning nil, never an error.
	for i := 0; i < 3; i++ {
		q, err := service.NextQuestion(ctx, code)
		if err != nil || q != nil {
			t.Fatalf("expected nil after exhaustion, got q=%v err=%v", q, err)
		}
	}
}

func TestNextQuestionOmitsAnswersForOpenTypes(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	q, _ := service.NextQuestion(ctx, code)
	if q == nil || !q.Type.Closed() || len(q.Answers) != 3 {
		t.Fatalf("expected closed question with answers, got %+v", q)
	}
	service.NextQuestion(ctx, code)
	q, _ = service.NextQuestion(ctx, code)
	if q == nil || q.Type != domain.OpenRestricted {
		t.Fatalf("expected open_restricted third, got %+v", q)
	}
	if len(q.Answers) != 0 {
		t.Fatalf("expected no answers on open question, got %+v", q.Answers)
	}
}

func TestAnswerValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	if err := service.Answer(ctx, aliceEmail, code, []int64{999}); !errors.Is(err, domain.ErrAnswerDoesNotExist) {
		t.Fatalf("expected ErrAnswerDoesNotExist, got %v", err)
	}
	if err := service.Answer(ctx, aliceEmail, code, nil); !errors.Is(err, domain.ErrAnswerDoesNotExist) {
		t.Fatalf("expected ErrAnswerDoesNotExist for empty submission, got %v", err)
	}

	if err := service.Answer(ctx, aliceEmail, code, []int64{2}); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	// Second submission to the same question is rejected.
	if err := service.Answer(ctx, aliceEmail, code, []int64{1}); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}
	// Another question is still open to the same user.
	if err := service.Answer(ctx, aliceEmail, code, []int64{4, 5}); err != nil {
		t.Fatalf("save multi answer: %v", err)
	}
}

func TestOpenAnswerRules(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	code := startSession(t, service, 1)

	if err := service.OpenAnswer(ctx, aliceEmail, code, 3, "two words"); !errors.Is(err, domain.ErrOpenAnswerTooLong) {
		t.Fatalf("expected ErrOpenAnswerTooLong, got %v", err)
	}
	if err := service.OpenAnswer(ctx, aliceEmail, code, 1, "whatever"); !errors.Is(err, domain.ErrNotAnOpenAnswer) {
		t.Fatalf("expected ErrNotAnOpenAnswer, got %v", err)
	}
	if err := service.OpenAnswer(ctx, aliceEmail, code, 3, "great"); err != nil {
		t.Fatalf("save open answer: %v", err)
	}
	if err := service.OpenAnswer(ctx, aliceEmail, code, 3, "again"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered on second open answer, got %v", err)
	}
	// Unrestricted open questions accept long text.
	if err := service.OpenAnswer(ctx, aliceEmail, code, 4, "loved the pacing and the examples"); err != nil {
		t.Fatalf("save long open answer: %v", err)
	}
}
