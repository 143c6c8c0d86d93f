package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"survey-session-service/internal/app"
	"survey-session-service/internal/domain"
	"github.com/gorilla/websocket"
)

// eventHandler processes one session event for one connection and returns the
// symbolic code acknowledged to the caller.
type eventHandler func(ctx context.Context, c *client, payload json.RawMessage) Code

// WSHandler is the session gateway: it authenticates the handshake, binds
// connections to rooms and translates client events into session use cases.
type WSHandler struct {
	service  *app.SessionService
	verifier *TokenVerifier
	hub      *Hub
	upgrader websocket.Upgrader
	handlers map[string]eventHandler
}

func NewWSHandler(service *app.SessionService, verifier *TokenVerifier) *WSHandler {
	h := &WSHandler{
		service:  service,
		verifier: verifier,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	// One handler per event; every event acknowledges exactly one code.
	h.handlers = map[string]eventHandler{
		"session_connect":        h.sessionConnect,
		"initiate_next_question": h.initiateNextQuestion,
		"user_answer":            h.userAnswer,
		"user_open_answer":       h.userOpenAnswer,
		"end_session":            h.endSession,
	}
	return h
}

type inboundMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// ack pairs the acknowledged code with the event it answers.
type ack struct {
	For string `json:"for"`
	Code
}

type sessionConnectPayload struct {
	JoinCode string `json:"joinCode"`
}

type userAnswerPayload struct {
	AnswerIDs []int64 `json:"answerIds"`
}

type openAnswerPayload struct {
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
}

type questionView struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Media string `json:"media"`
}

type answerView struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// nextQuestionPayload is the room broadcast for an advance; Answers stays
// null for open-ended types and never carries correctness flags.
type nextQuestionPayload struct {
	Question questionView `json:"question"`
	Type     string       `json:"type"`
	Answers  []answerView `json:"answers"`
}

// ServeWS upgrades the connection, verifies the bearer credential and runs
// the event loop until the peer disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	email, err := h.verifier.Email(token)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Event: "connect_error", Payload: "invalid credentials"})
		_ = conn.Close()
		return
	}

	c := newClient(conn, email)
	h.hub.register(c)
	go c.writePump()
	defer h.disconnect(r.Context(), c)

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		handler, ok := h.handlers[in.Event]
		if !ok {
			c.push(ackMsg(in.Event, unknownEvent))
			continue
		}
		c.push(ackMsg(in.Event, handler(r.Context(), c, in.Payload)))
	}
}

// disconnect mirrors a leave: presence cleanup, a user_leave notice to the
// room, then deregistration and socket teardown.
func (h *WSHandler) disconnect(ctx context.Context, c *client) {
	if c.joinCode != "" {
		if err := h.service.Leave(ctx, c.email, c.joinCode); err != nil {
			log.Printf("presence cleanup for %s failed: %v", c.email, err)
		}
		h.hub.broadcast(c.joinCode, outboundMessage{Event: "user_leave", Payload: c.email}, c)
	}
	h.hub.unregister(c)
	c.shutdown()
}

func (h *WSHandler) sessionConnect(ctx context.Context, c *client, payload json.RawMessage) Code {
	var req sessionConnectPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.JoinCode == "" {
		return sessionNotJoinable
	}

	role, err := h.service.Join(ctx, c.email, req.JoinCode, c.id)
	switch {
	case errors.Is(err, domain.ErrNotJoinable):
		return sessionNotJoinable
	case errors.Is(err, domain.ErrNotAllowed):
		return userNotAllowed
	case errors.Is(err, domain.ErrAlreadyJoined):
		return userAlreadyJoined
	case err != nil:
		log.Printf("session_connect %s: %v", req.JoinCode, err)
		return internalError
	}

	c.joinCode = req.JoinCode
	c.isOwner = role == app.RoleOwner
	h.hub.joinRoom(req.JoinCode, c)

	if c.isOwner {
		return ownerJoinsSession
	}
	h.hub.broadcast(req.JoinCode, outboundMessage{Event: "user_join", Payload: c.email}, c)
	if count, err := h.service.ParticipantCount(ctx, req.JoinCode); err == nil {
		log.Printf("user %s joined session %s (%d participants)", c.email, req.JoinCode, count)
	}
	return userJoinsSession
}

func (h *WSHandler) initiateNextQuestion(ctx context.Context, c *client, _ json.RawMessage) Code {
	if !c.isOwner {
		return notOwner
	}
	if c.joinCode == "" {
		return noSessionBound
	}

	question, err := h.service.NextQuestion(ctx, c.joinCode)
	if errors.Is(err, domain.ErrSessionEnded) {
		return sessionOver
	}
	if err != nil {
		log.Printf("next question for %s: %v", c.joinCode, err)
		return internalError
	}
	if question == nil {
		return noMoreQuestions
	}

	payload := nextQuestionPayload{
		Question: questionView{ID: question.ID, Text: question.Text, Media: question.Media},
		Type:     string(question.Type),
	}
	if question.Type.Closed() {
		payload.Answers = make([]answerView, 0, len(question.Answers))
		for _, a := range question.Answers {
			payload.Answers = append(payload.Answers, answerView{ID: a.ID, Text: a.Text})
		}
	}
	h.hub.broadcast(c.joinCode, outboundMessage{Event: "next_question", Payload: payload}, nil)
	return nextQuestion
}

func (h *WSHandler) userAnswer(ctx context.Context, c *client, payload json.RawMessage) Code {
	if c.isOwner {
		return notParticipant
	}
	if c.joinCode == "" {
		return noSessionBound
	}
	var req userAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return answerDoesNotExist
	}

	err := h.service.Answer(ctx, c.email, c.joinCode, req.AnswerIDs)
	switch {
	case errors.Is(err, domain.ErrAnswerDoesNotExist):
		return answerDoesNotExist
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return alreadyAnswered
	case err != nil:
		log.Printf("save answer for %s: %v", c.email, err)
		return internalError
	}

	h.hub.broadcast(c.joinCode, outboundMessage{Event: "user_answered", Payload: c.email}, nil)
	return answerSaved
}

func (h *WSHandler) userOpenAnswer(ctx context.Context, c *client, payload json.RawMessage) Code {
	if c.isOwner {
		return notParticipant
	}
	if c.joinCode == "" {
		return noSessionBound
	}
	var req openAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return answerDoesNotExist
	}

	err := h.service.OpenAnswer(ctx, c.email, c.joinCode, req.QuestionID, req.Text)
	switch {
	case errors.Is(err, domain.ErrOpenAnswerTooLong):
		return openAnswerTooLong
	case errors.Is(err, domain.ErrNotAnOpenAnswer):
		return notOpenAnswer
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return alreadyAnswered
	case errors.Is(err, domain.ErrAnswerDoesNotExist):
		return answerDoesNotExist
	case err != nil:
		log.Printf("save open answer for %s: %v", c.email, err)
		return internalError
	}

	h.hub.broadcast(c.joinCode, outboundMessage{Event: "user_answered", Payload: c.email}, nil)

	// The raw text goes to the owner only.
	if ownerConn, err := h.service.OwnerConn(ctx, c.joinCode); err == nil && ownerConn != "" {
		h.hub.unicast(ownerConn, outboundMessage{Event: "user_open_answered", Payload: req.Text})
	}
	return answerSaved
}

func (h *WSHandler) endSession(ctx context.Context, c *client, _ json.RawMessage) Code {
	if !c.isOwner {
		return notOwner
	}
	if c.joinCode == "" {
		return noSessionBound
	}

	serialized, err := h.service.EndSession(ctx, c.joinCode)
	if err != nil {
		log.Printf("end session %s: %v", c.joinCode, err)
		return internalError
	}

	c.push(outboundMessage{Event: "session_results", Payload: json.RawMessage(serialized)})
	h.hub.broadcast(c.joinCode, outboundMessage{Event: "session_end", Payload: nil}, c)
	h.hub.closeRoom(c.joinCode, c)
	return sessionEnds
}

func ackMsg(event string, code Code) outboundMessage {
	return outboundMessage{Event: "ack", Payload: ack{For: event, Code: code}}
}
