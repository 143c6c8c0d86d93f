package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"survey-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a session's ordered question list from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, joinCode string) ([]domain.Question, error)
}

// QuestionRepository caches a session's question list in Redis
// (SET {joinCode}:questions <json>) and falls back to the loader on a miss,
// so every advance in a session does not re-read the whole survey.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionsInOrder(ctx context.Context, joinCode string) ([]domain.Question, error) {
	key := questionsKey(joinCode)

	if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(cached, &questions); err == nil {
			return questions, nil
		}
		// Unreadable cache entries are dropped and reloaded.
		_ = r.client.Del(ctx, key).Err()
	}

	result, err, _ := r.sf.Do(joinCode, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(cached, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := r.loader.LoadQuestions(ctx, joinCode)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(questions); err == nil {
			_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func questionsKey(joinCode string) string { return joinCode + ":questions" }

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
