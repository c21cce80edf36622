package main

import (
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"clinical-scribe/internal/agent"
	"clinical-scribe/internal/cascade"
	"clinical-scribe/internal/config"
	"clinical-scribe/internal/consultation"
	"clinical-scribe/internal/patient"
	"clinical-scribe/internal/report"
	"clinical-scribe/internal/transcribe"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// 1. Infrastructure
	var db *sql.DB
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			break
		}
		log.Info().Int("attempt", i+1).Msg("waiting for database")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	log.Info().Msg("connected to database")

	m, err := migrate.New(cfg.MigrationsPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("migration init failed")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal().Err(err).Msg("migration up failed")
	}
	log.Info().Msg("migrations applied")

	var buffer transcribe.BufferStore
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		buffer = transcribe.NewRedisBuffer(redis.NewClient(opts))
		log.Info().Msg("transcript buffer backed by redis")
	} else {
		buffer = transcribe.NewMemoryBuffer()
		log.Info().Msg("transcript buffer in memory")
	}

	// 2. Capability clients
	llm := agent.NewLLMClient(agent.LLMConfig{
		BaseURL: cfg.LLMAPIURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.LLMTimeout,
	})
	stt := agent.NewWhisperClient(cfg.STTAPIURL, cfg.STTTimeout)

	// 3. Services
	consultationRepo := consultation.NewRepository(db)
	patientRepo := patient.NewRepository(db)
	adapter := transcribe.NewAdapter(stt, llm, buffer, log)
	trigger := transcribe.NewTriggerPolicy(cfg.AnalysisTriggerThreshold)
	runner := cascade.NewRunner(llm, log)
	reportSvc := report.NewService(cfg.ReportFontPaths)

	svc := consultation.NewService(consultationRepo, patientRepo, adapter, runner, trigger, llm, log)
	handler := consultation.NewHandler(svc, reportSvc)
	wsHandler := consultation.NewWSHandler(svc, log)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api/clinical", func(r chi.Router) {
		consultation.RegisterRoutes(r, handler)
		r.Get("/ws", wsHandler.ServeHTTP)
	})

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
