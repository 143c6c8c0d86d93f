package http

// Code is the symbolic {tag, human message} pair acknowledged to the caller
// after each session event. Tags are the wire contract; messages are advisory.
type Code struct {
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Returned by session_connect.
var (
	ownerJoinsSession  = Code{"owner_join", "Welcome, session owner"}
	userJoinsSession   = Code{"join", "Welcome to the session"}
	userAlreadyJoined  = Code{"already_joined", "Already connected to the session"}
	userNotAllowed     = Code{"join_not_allowed", "No right to join this session"}
	sessionNotJoinable = Code{"not_joinable", "The session does not exist, has already started or is over"}
)

// Returned by owner-gated events called by someone else.
var notOwner = Code{"refused", "You are not the session owner"}

// Returned by initiate_next_question.
var (
	nextQuestion    = Code{"next_question", "Moving on to the next question"}
	noMoreQuestions = Code{"no_more_questions", "End of the questionnaire"}
	sessionOver     = Code{"session_over", "The session has already ended"}
)

// Returned by user_answer and user_open_answer.
var (
	answerSaved        = Code{"answer_saved", "Answer saved"}
	answerDoesNotExist = Code{"answer_does_not_exist", "A chosen answer does not exist"}
	alreadyAnswered    = Code{"already_answered", "This question was already answered"}
	openAnswerTooLong  = Code{"open_answer_too_long", "Only a one-word answer is allowed for this question"}
	notOpenAnswer      = Code{"not_open_answer", "The question does not accept open answers"}
	notParticipant     = Code{"refused", "Only participants may answer"}
)

// Returned by end_session.
var sessionEnds = Code{"session_ends", "End of session"}

// Caller protocol errors and infrastructure failures.
var (
	noSessionBound = Code{"no_session", "No session joined on this connection"}
	unknownEvent   = Code{"unknown_event", "Unsupported event"}
	internalError  = Code{"internal_error", "The operation failed"}
)
