package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"survey-session-service/internal/app"
	"survey-session-service/internal/config"
	"survey-session-service/internal/domain"
	"survey-session-service/internal/infra/memory"
	pgstore "survey-session-service/internal/infra/postgres"
	redisstore "survey-session-service/internal/infra/redis"
	transport "survey-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var (
		store     app.SessionStore
		questions app.QuestionRepository
		presence  app.PresenceStore
	)
	if pool != nil {
		durable := pgstore.NewSessionStore(pool)
		store = durable
		if redisClient != nil {
			questions = redisstore.NewQuestionRepository(redisClient, durable, questionTTL)
		} else {
			questions = memory.NewQuestionRepository(durable, questionTTL)
		}
	} else {
		// Demo mode: seeded in-memory data, handy for local frontend work.
		durable := memory.NewSessionStore(sampleFixture())
		store = durable
		questions = memory.NewQuestionRepository(durable, questionTTL)
	}
	if redisClient != nil {
		presence = redisstore.NewPresenceStore(redisClient)
	} else {
		presence = memory.NewPresenceStore()
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = "dev-secret"
	}
	verifier := transport.NewTokenVerifier(secret)

	service := app.NewSessionService(store, questions, presence, nil)
	wsHandler := transport.NewWSHandler(service, verifier)
	sessionHandler := transport.NewSessionHandler(service, verifier)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/sessions/start", sessionHandler.StartSession)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleFixture seeds the in-memory stores with a small public session setup;
// swap Postgres in for real data.
func sampleFixture() memory.Fixture {
	return memory.Fixture{
		Users: []domain.User{
			{ID: 1, Name: "Ada", Surname: "Teacher", Email: "teacher@example.org"},
			{ID: 2, Name: "Sam", Surname: "Student", Email: "student@example.org"},
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
				ID: 2, Type: domain.OpenRestricted,
				Text: "One word that sums up the course?",
			},
		},
		Surveys: []memory.SurveyFixture{
			{Survey: domain.Survey{ID: 1, UserID: 1, Title: "Demo survey"}, QuestionIDs: []int64{1, 2}},
		},
		Templates: []domain.SessionTemplate{
			{ID: 1, SurveyID: 1, Name: "Demo session", Type: domain.Piloted, IsPublic: true},
		},
	}
}
