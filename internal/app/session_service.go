package app

import (
	"context"
	"errors"
	"strings"

	"survey-session-service/internal/domain"
	"survey-session-service/internal/joincode"
)

// SessionStore is the durable side of a live session: lifecycle flags, the
// current-question pointer and every recorded response. Implementations map
// referential violations to the matching domain errors.
type SessionStore interface {
	FindSession(ctx context.Context, joinCode string) (domain.SessionInstance, error)
	IsOwner(ctx context.Context, email, joinCode string) (bool, error)
	CanJoin(ctx context.Context, email, joinCode string) (bool, error)
	CreateSession(ctx context.Context, email string, templateID int64, joinCode string) (domain.SessionInstance, error)
	MarkStarted(ctx context.Context, joinCode string) error

	// AdvanceQuestion moves the pointer from `from` to `to` only if the stored
	// pointer still equals `from`; reports whether the update applied.
	AdvanceQuestion(ctx context.Context, joinCode string, from *int64, to int64) (bool, error)

	QuestionType(ctx context.Context, questionID int64) (domain.QuestionType, error)
	QuestionsForAnswers(ctx context.Context, answerIDs []int64) (map[int64]int64, error)
	HasAnswered(ctx context.Context, email, joinCode string, questionID int64) (bool, error)
	HasOpenAnswered(ctx context.Context, email, joinCode string, questionID int64) (bool, error)
	InsertResponses(ctx context.Context, email, joinCode string, answerIDs []int64) error
	InsertOpenResponse(ctx context.Context, email, joinCode string, questionID int64, text string) error

	ClosedResponses(ctx context.Context, joinCode string) ([]domain.ResponseRow, error)
	OpenResponses(ctx context.Context, joinCode string) ([]domain.ResponseRow, error)
	CorrectAnswerCount(ctx context.Context, questionID int64) (int, error)
	SaveSnapshot(ctx context.Context, joinCode string, serialized []byte) error
}

// QuestionRepository serves the ordered question list of a session, answers
// included (from cache or the backing store).
type QuestionRepository interface {
	QuestionsInOrder(ctx context.Context, joinCode string) ([]domain.Question, error)
}

// PresenceStore tracks who is currently connected to a session and which
// connection handle owns it. All operations must be atomic per call so that
// independent server processes can share one store.
type PresenceStore interface {
	Join(ctx context.Context, joinCode, email string) error
	Leave(ctx context.Context, joinCode, email string) error
	IsPresent(ctx context.Context, joinCode, email string) (bool, error)
	Count(ctx context.Context, joinCode string) (int64, error)
	SetOwnerConn(ctx context.Context, joinCode, connID string) error
	OwnerConn(ctx context.Context, joinCode string) (string, error)
	Clear(ctx context.Context, joinCode string) error
}

// Role of an identity inside a session room.
type Role int

const (
	RoleParticipant Role = iota
	RoleOwner
)

// SessionService contains the live-session use cases: joining, advancing
// through questions, collecting answers and producing the final snapshot.
type SessionService struct {
	store     SessionStore
	questions QuestionRepository
	presence  PresenceStore
	newCode   joincode.Generator
}

func NewSessionService(store SessionStore, questions QuestionRepository, presence PresenceStore, gen joincode.Generator) *SessionService {
	if gen == nil {
		gen = joincode.New
	}
	return &SessionService{store: store, questions: questions, presence: presence, newCode: gen}
}

// StartSession creates a durable session instance from a template owned by the
// caller, with a freshly generated join code.
func (s *SessionService) StartSession(ctx context.Context, email string, templateID int64) (domain.SessionInstance, error) {
	code, err := s.newCode()
	if err != nil {
		return domain.SessionInstance{}, err
	}
	return s.store.CreateSession(ctx, email, templateID, code)
}

// Join binds an identity to a session room. The survey creator becomes the
// owner and has its connection handle recorded; everyone else is a participant
// gated by template visibility and prior presence.
func (s *SessionService) Join(ctx context.Context, email, joinCode, connID string) (Role, error) {
	sess, err := s.store.FindSession(ctx, joinCode)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return 0, domain.ErrNotJoinable
	}
	if err != nil {
		return 0, err
	}
	if !sess.State.Joinable() {
		return 0, domain.ErrNotJoinable
	}

	owner, err := s.store.IsOwner(ctx, email, joinCode)
	if err != nil {
		return 0, err
	}
	if owner {
		if err := s.presence.SetOwnerConn(ctx, joinCode, connID); err != nil {
			return 0, err
		}
		return RoleOwner, nil
	}

	allowed, err := s.store.CanJoin(ctx, email, joinCode)
	if err != nil {
		return 0, err
	}
	if !allowed {
		return 0, domain.ErrNotAllowed
	}

	present, err := s.presence.IsPresent(ctx, joinCode, email)
	if err != nil {
		return 0, err
	}
	if present {
		return 0, domain.ErrAlreadyJoined
	}
	if err := s.presence.Join(ctx, joinCode, email); err != nil {
		return 0, err
	}
	return RoleParticipant, nil
}

// Leave removes a participant from the presence set, typically on disconnect.
func (s *SessionService) Leave(ctx context.Context, email, joinCode string) error {
	return s.presence.Leave(ctx, joinCode, email)
}

// ParticipantCount reports how many participants are currently connected.
func (s *SessionService) ParticipantCount(ctx context.Context, joinCode string) (int64, error) {
	return s.presence.Count(ctx, joinCode)
}

// OwnerConn resolves the connection handle bound as the session owner.
func (s *SessionService) OwnerConn(ctx context.Context, joinCode string) (string, error) {
	return s.presence.OwnerConn(ctx, joinCode)
}

// NextQuestion marks the session started and returns the question after the
// current one in the fixed ordering, or nil once the list is exhausted.
// Exhaustion is a no-op: repeated calls keep returning nil without error.
func (s *SessionService) NextQuestion(ctx context.Context, joinCode string) (*domain.Question, error) {
	sess, err := s.store.FindSession(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	if !sess.State.CanAdvance() {
		return nil, domain.ErrSessionEnded
	}
	if sess.State == domain.StateJoinable {
		if err := s.store.MarkStarted(ctx, joinCode); err != nil {
			return nil, err
		}
	}

	all, err := s.questions.QuestionsInOrder(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	next := nextInOrder(all, sess.CurrentQuestionID)
	if next == nil {
		return nil, nil
	}

	// Compare-and-set keyed on the pointer we read: a racing advance for the
	// same session lands on the same question instead of skipping one.
	if _, err := s.store.AdvanceQuestion(ctx, joinCode, sess.CurrentQuestionID, next.ID); err != nil {
		return nil, err
	}
	return next, nil
}

// nextInOrder locates the question after current in the ordered list. A nil
// current selects the first item; a current that is last or no longer in the
// list selects nothing.
func nextInOrder(all []domain.Question, current *int64) *domain.Question {
	if len(all) == 0 {
		return nil
	}
	if current == nil {
		return &all[0]
	}
	for i := range all {
		if all[i].ID == *current {
			if i+1 == len(all) {
				return nil
			}
			return &all[i+1]
		}
	}
	return nil
}

// Answer records a closed-form submission, one response row per answer id.
// Unknown answer ids fail with ErrAnswerDoesNotExist; a second submission for
// an already-answered question fails with ErrAlreadyAnswered.
func (s *SessionService) Answer(ctx context.Context, email, joinCode string, answerIDs []int64) error {
	if len(answerIDs) == 0 {
		return domain.ErrAnswerDoesNotExist
	}
	byAnswer, err := s.store.QuestionsForAnswers(ctx, answerIDs)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{})
	for _, aid := range answerIDs {
		qid, ok := byAnswer[aid]
		if !ok {
			return domain.ErrAnswerDoesNotExist
		}
		if _, dup := seen[qid]; dup {
			continue
		}
		seen[qid] = struct{}{}
		answered, err := s.store.HasAnswered(ctx, email, joinCode, qid)
		if err != nil {
			return err
		}
		if answered {
			return domain.ErrAlreadyAnswered
		}
	}
	return s.store.InsertResponses(ctx, email, joinCode, answerIDs)
}

// OpenAnswer records a free-text submission after enforcing the question-type
// rules: closed questions never accept text, single-word questions accept at
// most one whitespace-separated token.
func (s *SessionService) OpenAnswer(ctx context.Context, email, joinCode string, questionID int64, text string) error {
	qt, err := s.store.QuestionType(ctx, questionID)
	if err != nil {
		return err
	}
	if qt == domain.OpenRestricted && len(strings.Fields(text)) > 1 {
		return domain.ErrOpenAnswerTooLong
	}
	if qt.Closed() {
		return domain.ErrNotAnOpenAnswer
	}
	answered, err := s.store.HasOpenAnswered(ctx, email, joinCode, questionID)
	if err != nil {
		return err
	}
	if answered {
		return domain.ErrAlreadyAnswered
	}
	return s.store.InsertOpenResponse(ctx, email, joinCode, questionID, text)
}

// EndSession aggregates every recorded response into the immutable results
// snapshot, persists it and clears the presence index for the room. The
// serialized snapshot is returned for immediate delivery to the owner.
func (s *SessionService) EndSession(ctx context.Context, joinCode string) ([]byte, error) {
	serialized, err := s.aggregateResults(ctx, joinCode)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSnapshot(ctx, joinCode, serialized); err != nil {
		return nil, err
	}
	if err := s.presence.Clear(ctx, joinCode); err != nil {
		return nil, err
	}
	return serialized, nil
}
