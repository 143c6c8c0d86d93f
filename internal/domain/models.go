package domain

import "time"

// User is the identity behind a connection; Email is the external identity
// carried by the bearer credential.
type User struct {
	ID      int64
	Name    string
	Surname string
	Email   string
}

// Survey is an ordered collection of questions owned by its creator.
type Survey struct {
	ID      int64
	UserID  int64
	Title   string
	Subject string
}

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	// SingleAnswer is a closed question with exactly one correct answer.
	SingleAnswer QuestionType = "single_answer"
	// MultipleAnswers is a closed question where several answers may be correct.
	MultipleAnswers QuestionType = "multiple_answers"
	// Open is a free-text question, never auto-scored.
	Open QuestionType = "open"
	// OpenRestricted is a free-text question limited to a single word.
	OpenRestricted QuestionType = "open_restricted"
)

// Closed reports whether the question is scored against a fixed answer set.
func (t QuestionType) Closed() bool {
	return t == SingleAnswer || t == MultipleAnswers
}

// Answer is one selectable option of a closed question.
type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
	Correct    bool   `json:"correct"`
}

// Question belongs to a survey; Media is an optional attachment URL.
type Question struct {
	ID      int64        `json:"id"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Media   string       `json:"media"`
	Answers []Answer     `json:"answers"`
}

// DeliveryType controls how a session template advances through questions.
type DeliveryType string

const (
	Piloted   DeliveryType = "piloted"    // owner drives each advance
	AutoTimer DeliveryType = "auto_timer" // timer-driven, enforced outside this service
	AutoFree  DeliveryType = "auto_free"  // participants advance at their own pace
)

// SessionTemplate is the reusable configuration a session instance is started from.
type SessionTemplate struct {
	ID          int64
	SurveyID    int64
	Name        string
	Type        DeliveryType
	IsPublic    bool
	ShowAnswers bool
	Deleted     bool
}

// SessionState is the explicit lifecycle of a session instance.
type SessionState int

const (
	// StateJoinable: the session exists, has not started, and has no results snapshot.
	StateJoinable SessionState = iota
	// StateRunning: the owner has initiated the first question.
	StateRunning
	// StateEnded: a results snapshot exists; the session is immutable.
	StateEnded
)

func (s SessionState) String() string {
	switch s {
	case StateJoinable:
		return "joinable"
	case StateRunning:
		return "running"
	default:
		return "ended"
	}
}

// StateOf derives the tagged state from the stored flags.
func StateOf(hasStarted, hasSnapshot bool) SessionState {
	switch {
	case hasSnapshot:
		return StateEnded
	case hasStarted:
		return StateRunning
	default:
		return StateJoinable
	}
}

// Joinable reports whether new participants may still bind to the session.
func (s SessionState) Joinable() bool { return s == StateJoinable }

// CanAdvance reports whether the question pointer may still move.
func (s SessionState) CanAdvance() bool { return s != StateEnded }

// SessionInstance is one durable run of a template.
type SessionInstance struct {
	ID                int64
	TemplateID        int64
	JoinCode          string
	CreatedAt         time.Time
	State             SessionState
	CurrentQuestionID *int64
}

// ResponseRow is one recorded submission joined with its question metadata,
// the unit the results aggregator consumes. Correct is nil for open rows.
type ResponseRow struct {
	UserID       int64
	QuestionID   int64
	QuestionText string
	QuestionType QuestionType
	AnswerText   string
	Correct      *bool
}

// QuestionResult is the per-user outcome for one question inside a snapshot.
// CorrectlyAnswered is only set for closed questions.
type QuestionResult struct {
	QuestionText      string   `json:"question_text"`
	AnswersText       []string `json:"answers_text"`
	CorrectlyAnswered *bool    `json:"correctly_answered,omitempty"`
}

// SessionResults maps user id to question id to outcome; its JSON form is the
// immutable snapshot persisted when a session ends.
type SessionResults map[int64]map[int64]QuestionResult
