package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"survey-session-service/internal/domain"
)

// SurveyFixture links a survey to its question ids for seeding.
type SurveyFixture struct {
	domain.Survey
	QuestionIDs []int64
}

// GroupFixture is a user group identified by member emails.
type GroupFixture struct {
	ID      int64
	Members []string
}

// Fixture seeds the in-memory store with the administrative data the live
// subsystem treats as already present (users, surveys, questions, templates).
type Fixture struct {
	Users            []domain.User
	Questions        []domain.Question
	Surveys          []SurveyFixture
	Templates        []domain.SessionTemplate
	Groups           []GroupFixture
	AuthorisedGroups map[int64]int64 // template id -> group id
}

type session struct {
	inst        domain.SessionInstance
	hasStarted  bool
	hasSnapshot bool
	snapshot    []byte
}

type response struct {
	userID    int64
	sessionID int64
	answerID  int64
}

type openResponse struct {
	userID     int64
	sessionID  int64
	questionID int64
	text       string
}

// SessionStore is an in-memory implementation of app.SessionStore, used in
// unit tests and when no Postgres URL is configured.
type SessionStore struct {
	mu sync.RWMutex

	users      map[string]domain.User // by email
	questions  map[int64]domain.Question
	answers    map[int64]domain.Answer
	surveys    map[int64]SurveyFixture
	templates  map[int64]domain.SessionTemplate
	groups     map[int64]map[string]struct{}
	authorised map[int64]int64

	sessions      map[string]*session // by join code
	responses     []response
	openResponses []openResponse
	nextSessionID int64
	now           func() time.Time
}

func NewSessionStore(fix Fixture) *SessionStore {
	s := &SessionStore{
		users:      make(map[string]domain.User),
		questions:  make(map[int64]domain.Question),
		answers:    make(map[int64]domain.Answer),
		surveys:    make(map[int64]SurveyFixture),
		templates:  make(map[int64]domain.SessionTemplate),
		groups:     make(map[int64]map[string]struct{}),
		authorised: make(map[int64]int64),
		sessions:   make(map[string]*session),
		now:        time.Now,
	}
	for _, u := range fix.Users {
		s.users[u.Email] = u
	}
	for _, q := range fix.Questions {
		s.questions[q.ID] = q
		for _, a := range q.Answers {
			a.QuestionID = q.ID
			s.answers[a.ID] = a
		}
	}
	for _, sv := range fix.Surveys {
		s.surveys[sv.ID] = sv
	}
	for _, t := range fix.Templates {
		s.templates[t.ID] = t
	}
	for _, g := range fix.Groups {
		members := make(map[string]struct{}, len(g.Members))
		for _, m := range g.Members {
			members[m] = struct{}{}
		}
		s.groups[g.ID] = members
	}
	for tid, gid := range fix.AuthorisedGroups {
		s.authorised[tid] = gid
	}
	return s
}

func (s *SessionStore) CreateSession(_ context.Context, email string, templateID int64, joinCode string) (domain.SessionInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.templates[templateID]
	if !ok || tpl.Deleted {
		return domain.SessionInstance{}, domain.ErrTemplateNotFound
	}
	survey, ok := s.surveys[tpl.SurveyID]
	if !ok {
		return domain.SessionInstance{}, domain.ErrTemplateNotFound
	}
	user, ok := s.users[email]
	if !ok || survey.UserID != user.ID {
		return domain.SessionInstance{}, domain.ErrNotOwner
	}

	s.nextSessionID++
	inst := domain.SessionInstance{
		ID:         s.nextSessionID,
		TemplateID: templateID,
		JoinCode:   joinCode,
		CreatedAt:  s.now(),
		State:      domain.StateJoinable,
	}
	s.sessions[joinCode] = &session{inst: inst}
	return inst, nil
}

func (s *SessionStore) FindSession(_ context.Context, joinCode string) (domain.SessionInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return domain.SessionInstance{}, domain.ErrSessionNotFound
	}
	inst := sess.inst
	inst.State = domain.StateOf(sess.hasStarted, sess.hasSnapshot)
	return inst, nil
}

func (s *SessionStore) IsOwner(_ context.Context, email, joinCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return false, nil
	}
	tpl := s.templates[sess.inst.TemplateID]
	survey := s.surveys[tpl.SurveyID]
	user, ok := s.users[email]
	return ok && survey.UserID == user.ID, nil
}

func (s *SessionStore) CanJoin(_ context.Context, email, joinCode string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return false, nil
	}
	tpl := s.templates[sess.inst.TemplateID]
	if tpl.IsPublic {
		return true, nil
	}
	gid, ok := s.authorised[tpl.ID]
	if !ok {
		return false, nil
	}
	_, member := s.groups[gid][email]
	return member, nil
}

func (s *SessionStore) MarkStarted(_ context.Context, joinCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.hasStarted = true
	return nil
}

func (s *SessionStore) AdvanceQuestion(_ context.Context, joinCode string, from *int64, to int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	cur := sess.inst.CurrentQuestionID
	if (cur == nil) != (from == nil) || (cur != nil && *cur != *from) {
		return false, nil
	}
	sess.inst.CurrentQuestionID = &to
	return true, nil
}

func (s *SessionStore) QuestionType(_ context.Context, questionID int64) (domain.QuestionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[questionID]
	if !ok {
		return "", domain.ErrAnswerDoesNotExist
	}
	return q.Type, nil
}

func (s *SessionStore) QuestionsForAnswers(_ context.Context, answerIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]int64, len(answerIDs))
	for _, aid := range answerIDs {
		if a, ok := s.answers[aid]; ok {
			out[aid] = a.QuestionID
		}
	}
	return out, nil
}

func (s *SessionStore) HasAnswered(_ context.Context, email, joinCode string, questionID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, sessionID, err := s.resolveLocked(email, joinCode)
	if err != nil {
		return false, err
	}
	for _, r := range s.responses {
		if r.userID == userID && r.sessionID == sessionID && s.answers[r.answerID].QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionStore) HasOpenAnswered(_ context.Context, email, joinCode string, questionID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, sessionID, err := s.resolveLocked(email, joinCode)
	if err != nil {
		return false, err
	}
	for _, r := range s.openResponses {
		if r.userID == userID && r.sessionID == sessionID && r.questionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionStore) InsertResponses(_ context.Context, email, joinCode string, answerIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, sessionID, err := s.resolveLocked(email, joinCode)
	if err != nil {
		return err
	}
	for _, aid := range answerIDs {
		if _, ok := s.answers[aid]; !ok {
			return domain.ErrAnswerDoesNotExist
		}
		for _, r := range s.responses {
			if r.userID == userID && r.sessionID == sessionID && r.answerID == aid {
				return domain.ErrAlreadyAnswered
			}
		}
	}
	for _, aid := range answerIDs {
		s.responses = append(s.responses, response{userID: userID, sessionID: sessionID, answerID: aid})
	}
	return nil
}

func (s *SessionStore) InsertOpenResponse(_ context.Context, email, joinCode string, questionID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, sessionID, err := s.resolveLocked(email, joinCode)
	if err != nil {
		return err
	}
	if _, ok := s.questions[questionID]; !ok {
		return domain.ErrAnswerDoesNotExist
	}
	s.openResponses = append(s.openResponses, openResponse{
		userID: userID, sessionID: sessionID, questionID: questionID, text: text,
	})
	return nil
}

func (s *SessionStore) ClosedResponses(_ context.Context, joinCode string) ([]domain.ResponseRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var rows []domain.ResponseRow
	for _, r := range s.responses {
		if r.sessionID != sess.inst.ID {
			continue
		}
		a := s.answers[r.answerID]
		q := s.questions[a.QuestionID]
		correct := a.Correct
		rows = append(rows, domain.ResponseRow{
			UserID:       r.userID,
			QuestionID:   q.ID,
			QuestionText: q.Text,
			QuestionType: q.Type,
			AnswerText:   a.Text,
			Correct:      &correct,
		})
	}
	return rows, nil
}

func (s *SessionStore) OpenResponses(_ context.Context, joinCode string) ([]domain.ResponseRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var rows []domain.ResponseRow
	for _, r := range s.openResponses {
		if r.sessionID != sess.inst.ID {
			continue
		}
		q := s.questions[r.questionID]
		rows = append(rows, domain.ResponseRow{
			UserID:       r.userID,
			QuestionID:   q.ID,
			QuestionText: q.Text,
			QuestionType: q.Type,
			AnswerText:   r.text,
		})
	}
	return rows, nil
}

func (s *SessionStore) CorrectAnswerCount(_ context.Context, questionID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.questions[questionID].Answers {
		if a.Correct {
			count++
		}
	}
	return count, nil
}

func (s *SessionStore) SaveSnapshot(_ context.Context, joinCode string, serialized []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if sess.hasSnapshot {
		return domain.ErrResultsExist
	}
	sess.hasSnapshot = true
	sess.snapshot = append([]byte(nil), serialized...)
	return nil
}

// Snapshot returns the stored results snapshot, for tests.
func (s *SessionStore) Snapshot(joinCode string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok || !sess.hasSnapshot {
		return nil, false
	}
	return sess.snapshot, true
}

// LoadQuestions serves the ordered question list of a session, making the
// store usable as a QuestionLoader.
func (s *SessionStore) LoadQuestions(_ context.Context, joinCode string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[joinCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	tpl := s.templates[sess.inst.TemplateID]
	survey, ok := s.surveys[tpl.SurveyID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	questions := make([]domain.Question, 0, len(survey.QuestionIDs))
	for _, qid := range survey.QuestionIDs {
		if q, ok := s.questions[qid]; ok {
			questions = append(questions, q)
		}
	}
	// Identifier ascending is the fixed play order.
	sort.Slice(questions, func(i, j int) bool { return questions[i].ID < questions[j].ID })
	return questions, nil
}

func (s *SessionStore) resolveLocked(email, joinCode string) (int64, int64, error) {
	user, ok := s.users[email]
	if !ok {
		return 0, 0, domain.ErrUserNotFound
	}
	sess, ok := s.sessions[joinCode]
	if !ok {
		return 0, 0, domain.ErrSessionNotFound
	}
	return user.ID, sess.inst.ID, nil
}
