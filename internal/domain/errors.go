package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches a join code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotJoinable is returned when a session has started or already ended.
	ErrNotJoinable = errors.New("session not joinable")
	// ErrNotAllowed is returned when the identity may not join a restricted session.
	ErrNotAllowed = errors.New("not allowed to join session")
	// ErrAlreadyJoined is returned when the identity is already present in the room.
	ErrAlreadyJoined = errors.New("already joined session")
	// ErrNotOwner is returned when an owner-gated action is called by a participant.
	ErrNotOwner = errors.New("not the session owner")
	// ErrNoSession is returned when an event arrives before a join code was bound.
	ErrNoSession = errors.New("no session bound to connection")
	// ErrSessionEnded is returned when acting on a session that has a results snapshot.
	ErrSessionEnded = errors.New("session has ended")
	// ErrAnswerDoesNotExist is returned when a submitted answer id matches no question.
	ErrAnswerDoesNotExist = errors.New("answer does not exist")
	// ErrNotAnOpenAnswer is returned when free text is submitted to a closed question.
	ErrNotAnOpenAnswer = errors.New("question does not accept open answers")
	// ErrOpenAnswerTooLong is returned when a single-word answer has several words.
	ErrOpenAnswerTooLong = errors.New("open answer exceeds one word")
	// ErrAlreadyAnswered is returned on a repeated submission for the same question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrResultsExist is returned when a second snapshot is attempted for a session.
	ErrResultsExist = errors.New("results already saved for session")
	// ErrUserNotFound is returned when an identity resolves to no durable user.
	ErrUserNotFound = errors.New("user not found")
	// ErrTemplateNotFound is returned when starting a session from an unknown template.
	ErrTemplateNotFound = errors.New("session template not found")
)
