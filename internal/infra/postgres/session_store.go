package postgres

import (
	"context"
	"errors"
	"fmt"

	"survey-session-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// SQLSTATE classes surfaced as domain errors.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// SessionStore implements app.SessionStore on Postgres. Each method is one
// short transaction bracketed by the calling event handler.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) FindSession(ctx context.Context, joinCode string) (domain.SessionInstance, error) {
	var (
		inst        domain.SessionInstance
		hasStarted  bool
		hasSnapshot bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.session_template_id, s.join_code, s.created_at, s.has_started, s.current_question_id,
		       EXISTS (SELECT 1 FROM survey_results r WHERE r.session_id = s.id)
		FROM survey_sessions s
		WHERE s.join_code = $1`, joinCode,
	).Scan(&inst.ID, &inst.TemplateID, &inst.JoinCode, &inst.CreatedAt, &hasStarted, &inst.CurrentQuestionID, &hasSnapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SessionInstance{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionInstance{}, fmt.Errorf("find session: %w", err)
	}
	inst.State = domain.StateOf(hasStarted, hasSnapshot)
	return inst, nil
}

func (s *SessionStore) IsOwner(ctx context.Context, email, joinCode string) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(u.id)
		FROM users u
		JOIN surveys sv ON sv.user_id = u.id
		JOIN survey_session_templates t ON t.survey_id = sv.id
		JOIN survey_sessions s ON s.session_template_id = t.id
		WHERE u.email = $1 AND s.join_code = $2`, email, joinCode,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check ownership: %w", err)
	}
	return count >= 1, nil
}

func (s *SessionStore) CanJoin(ctx context.Context, email, joinCode string) (bool, error) {
	var isPublic bool
	err := s.pool.QueryRow(ctx, `
		SELECT t.is_public
		FROM survey_session_templates t
		JOIN survey_sessions s ON s.session_template_id = t.id
		WHERE s.join_code = $1`, joinCode,
	).Scan(&isPublic)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check visibility: %w", err)
	}
	if isPublic {
		return true, nil
	}

	var membership int
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM survey_sessions s
		JOIN survey_session_templates t ON t.id = s.session_template_id
		JOIN authorised_groups ag ON ag.session_template_id = t.id
		JOIN group_members gm ON gm.group_id = ag.group_id
		JOIN users u ON u.id = gm.user_id
		WHERE s.join_code = $1 AND u.email = $2`, joinCode, email,
	).Scan(&membership)
	if err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return membership >= 1, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, email string, templateID int64, joinCode string) (domain.SessionInstance, error) {
	inst := domain.SessionInstance{TemplateID: templateID, JoinCode: joinCode, State: domain.StateJoinable}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO survey_sessions (session_template_id, join_code, created_at)
		SELECT t.id, $3, now()
		FROM survey_session_templates t
		JOIN surveys sv ON sv.id = t.survey_id
		JOIN users u ON u.id = sv.user_id
		WHERE t.id = $2 AND u.email = $1 AND NOT t.deleted
		RETURNING id, created_at`, email, templateID, joinCode,
	).Scan(&inst.ID, &inst.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM survey_session_templates WHERE id = $1 AND NOT deleted)`,
			templateID).Scan(&exists); err != nil {
			return domain.SessionInstance{}, fmt.Errorf("check template: %w", err)
		}
		if !exists {
			return domain.SessionInstance{}, domain.ErrTemplateNotFound
		}
		return domain.SessionInstance{}, domain.ErrNotOwner
	}
	if err != nil {
		return domain.SessionInstance{}, fmt.Errorf("create session: %w", err)
	}
	return inst, nil
}

func (s *SessionStore) MarkStarted(ctx context.Context, joinCode string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE survey_sessions SET has_started = TRUE WHERE join_code = $1`, joinCode)
	if err != nil {
		return fmt.Errorf("mark started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *SessionStore) AdvanceQuestion(ctx context.Context, joinCode string, from *int64, to int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE survey_sessions
		SET current_question_id = $3
		WHERE join_code = $1 AND current_question_id IS NOT DISTINCT FROM $2`,
		joinCode, from, to)
	if err != nil {
		return false, fmt.Errorf("advance question: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *SessionStore) QuestionType(ctx context.Context, questionID int64) (domain.QuestionType, error) {
	var qt domain.QuestionType
	err := s.pool.QueryRow(ctx, `SELECT type FROM questions WHERE id = $1`, questionID).Scan(&qt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrAnswerDoesNotExist
	}
	if err != nil {
		return "", fmt.Errorf("load question type: %w", err)
	}
	return qt, nil
}

func (s *SessionStore) QuestionsForAnswers(ctx context.Context, answerIDs []int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, question_id FROM answers WHERE id = ANY($1)`, answerIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve answers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64, len(answerIDs))
	for rows.Next() {
		var answerID, questionID int64
		if err := rows.Scan(&answerID, &questionID); err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		out[answerID] = questionID
	}
	return out, rows.Err()
}

func (s *SessionStore) HasAnswered(ctx context.Context, email, joinCode string, questionID int64) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM results r
		JOIN answers a ON a.id = r.answer_id
		JOIN users u ON u.id = r.user_id
		JOIN survey_sessions s ON s.id = r.session_id
		WHERE u.email = $1 AND s.join_code = $2 AND a.question_id = $3`,
		email, joinCode, questionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check prior answer: %w", err)
	}
	return count > 0, nil
}

func (s *SessionStore) HasOpenAnswered(ctx context.Context, email, joinCode string, questionID int64) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM open_answers o
		JOIN users u ON u.id = o.user_id
		JOIN survey_sessions s ON s.id = o.session_id
		WHERE u.email = $1 AND s.join_code = $2 AND o.question_id = $3`,
		email, joinCode, questionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check prior open answer: %w", err)
	}
	return count > 0, nil
}

func (s *SessionStore) InsertResponses(ctx context.Context, email, joinCode string, answerIDs []int64) error {
	userID, sessionID, err := s.resolve(ctx, email, joinCode)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin responses tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, answerID := range answerIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO results (user_id, answer_id, session_id) VALUES ($1, $2, $3)`,
			userID, answerID, sessionID); err != nil {
			return mapResponseError(err)
		}
	}
	return tx.Commit(ctx)
}

func (s *SessionStore) InsertOpenResponse(ctx context.Context, email, joinCode string, questionID int64, text string) error {
	userID, sessionID, err := s.resolve(ctx, email, joinCode)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO open_answers (text, question_id, user_id, session_id) VALUES ($1, $2, $3, $4)`,
		text, questionID, userID, sessionID); err != nil {
		return mapResponseError(err)
	}
	return nil
}

func (s *SessionStore) ClosedResponses(ctx context.Context, joinCode string) ([]domain.ResponseRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.user_id, q.id, q.text, q.type, a.text, a.is_correct
		FROM survey_sessions s
		JOIN survey_session_templates t ON t.id = s.session_template_id
		JOIN surveys sv ON sv.id = t.survey_id
		JOIN survey_questions sq ON sq.survey_id = sv.id
		JOIN questions q ON q.id = sq.question_id
		JOIN results r ON r.session_id = s.id
		JOIN answers a ON a.id = r.answer_id AND a.question_id = q.id
		WHERE s.join_code = $1 AND q.type IN ('single_answer', 'multiple_answers')
		ORDER BY r.user_id, q.id`, joinCode)
	if err != nil {
		return nil, fmt.Errorf("load closed responses: %w", err)
	}
	defer rows.Close()

	var out []domain.ResponseRow
	for rows.Next() {
		var (
			row     domain.ResponseRow
			correct bool
		)
		if err := rows.Scan(&row.UserID, &row.QuestionID, &row.QuestionText, &row.QuestionType, &row.AnswerText, &correct); err != nil {
			return nil, fmt.Errorf("scan closed response: %w", err)
		}
		row.Correct = &correct
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SessionStore) OpenResponses(ctx context.Context, joinCode string) ([]domain.ResponseRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.user_id, q.id, q.text, q.type, o.text
		FROM survey_sessions s
		JOIN survey_session_templates t ON t.id = s.session_template_id
		JOIN surveys sv ON sv.id = t.survey_id
		JOIN survey_questions sq ON sq.survey_id = sv.id
		JOIN questions q ON q.id = sq.question_id
		JOIN open_answers o ON o.session_id = s.id AND o.question_id = q.id
		WHERE s.join_code = $1 AND q.type IN ('open', 'open_restricted')
		ORDER BY o.user_id, q.id`, joinCode)
	if err != nil {
		return nil, fmt.Errorf("load open responses: %w", err)
	}
	defer rows.Close()

	var out []domain.ResponseRow
	for rows.Next() {
		var row domain.ResponseRow
		if err := rows.Scan(&row.UserID, &row.QuestionID, &row.QuestionText, &row.QuestionType, &row.AnswerText); err != nil {
			return nil, fmt.Errorf("scan open response: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SessionStore) CorrectAnswerCount(ctx context.Context, questionID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE question_id = $1 AND is_correct`, questionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count correct answers: %w", err)
	}
	return count, nil
}

func (s *SessionStore) SaveSnapshot(ctx context.Context, joinCode string, serialized []byte) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO survey_results (session_id, saved_results)
		SELECT s.id, $2 FROM survey_sessions s WHERE s.join_code = $1`,
		joinCode, string(serialized))
	if err != nil {
		if sqlState(err) == codeUniqueViolation {
			return domain.ErrResultsExist
		}
		return fmt.Errorf("save snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// LoadQuestions serves the ordered question list of a session, answers
// attached, making the store usable as a QuestionLoader behind the caches.
func (s *SessionStore) LoadQuestions(ctx context.Context, joinCode string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT q.id, q.type, q.text, COALESCE(q.media, ''), a.id, a.text, a.is_correct
		FROM survey_sessions s
		JOIN survey_session_templates t ON t.id = s.session_template_id
		JOIN surveys sv ON sv.id = t.survey_id
		JOIN survey_questions sq ON sq.survey_id = sv.id
		JOIN questions q ON q.id = sq.question_id
		LEFT JOIN answers a ON a.question_id = q.id
		WHERE s.join_code = $1
		ORDER BY q.id, a.id`, joinCode)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q          domain.Question
			answerID   *int64
			answerText *string
			correct    *bool
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Media, &answerID, &answerText, &correct); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != q.ID {
			out = append(out, q)
		}
		if answerID != nil {
			last := &out[len(out)-1]
			last.Answers = append(last.Answers, domain.Answer{
				ID:         *answerID,
				QuestionID: last.ID,
				Text:       *answerText,
				Correct:    correct != nil && *correct,
			})
		}
	}
	return out, rows.Err()
}

func (s *SessionStore) resolve(ctx context.Context, email, joinCode string) (int64, int64, error) {
	var userID, sessionID int64
	err := s.pool.QueryRow(ctx, `
		SELECT u.id, s.id
		FROM users u, survey_sessions s
		WHERE u.email = $1 AND s.join_code = $2`, email, joinCode,
	).Scan(&userID, &sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.ErrUserNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("resolve user and session: %w", err)
	}
	return userID, sessionID, nil
}

// mapResponseError translates referential violations on response inserts:
// an unknown answer id trips the foreign key, a duplicate (user, session,
// answer) tuple trips the primary key.
func mapResponseError(err error) error {
	switch sqlState(err) {
	case codeForeignKeyViolation:
		return domain.ErrAnswerDoesNotExist
	case codeUniqueViolation:
		return domain.ErrAlreadyAnswered
	}
	return fmt.Errorf("insert response: %w", err)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
