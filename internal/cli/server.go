package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ebaad-esr/QuizMaster/internal/app"
	"github.com/Ebaad-esr/QuizMaster/internal/config"
	"github.com/Ebaad-esr/QuizMaster/internal/domain"
	"github.com/Ebaad-esr/QuizMaster/internal/infra/memory"
	pgstore "github.com/Ebaad-esr/QuizMaster/internal/infra/postgres"
	redisinfra "github.com/Ebaad-esr/QuizMaster/internal/infra/redis"
	transport "github.com/Ebaad-esr/QuizMaster/internal/transport/http"
)

// dataStore is the full persistence surface the server needs; both the
// Postgres and the in-memory store satisfy it.
type dataStore interface {
	app.ResultStore
	app.QuestionSource
	transport.HostStore
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var store dataStore
	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = pgstore.NewStore(pool)
	} else {
		log.Warn("no postgres url configured, using in-memory store with demo data")
		memStore := memory.NewStore()
		if err := seedDemo(ctx, memStore); err != nil {
			return err
		}
		store = memStore
	}

	var questions app.QuestionSource = store
	var invalidator transport.QuestionInvalidator
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
		cache := redisinfra.NewQuestionCache(redisClient, store, quizTTL)
		questions = cache
		invalidator = cache
	}

	hub := app.NewHub()
	engine := app.NewEngine(store, questions, hub, log)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "quizmaster-dev-secret"
	}
	adminToken := cfg.Auth.AdminToken
	if adminToken == "" {
		adminToken = "admin"
	}
	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour)

	wsHandler := transport.NewWSHandler(engine, hub, log)
	hostHandler := transport.NewHostHandler(engine, store, invalidator, log, jwtSecret, tokenTTL, adminToken)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	hostHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz server", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemo fills the in-memory store with a login-able host and one
// small quiz so the server is usable without Postgres.
func seedDemo(ctx context.Context, store *memory.Store) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("demo"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hostID, err := store.CreateHost(ctx, "demo@example.com", string(hash))
	if err != nil {
		return err
	}
	quizID, err := store.CreateQuiz(ctx, hostID, "Demo Quiz")
	if err != nil {
		return err
	}
	demoQuestions := []domain.Question{
		{
			QuizID:             quizID,
			Text:               "What is 2 + 2?",
			Options:            []string{"3", "4", "5"},
			CorrectOptionIndex: 1,
			TimeLimit:          15,
			Score:              10,
			NegativeScore:      5,
		},
		{
			QuizID:             quizID,
			Text:               "Which planet is known as the Red Planet?",
			Options:            []string{"Venus", "Jupiter", "Mars"},
			CorrectOptionIndex: 2,
			TimeLimit:          15,
			Score:              10,
			NegativeScore:      5,
		},
	}
	for _, q := range demoQuestions {
		if _, err := store.AddQuestion(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
