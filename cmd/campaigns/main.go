package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/campaign-messaging/internal/api"
	"github.com/LeventeLantos/campaign-messaging/internal/client"
	"github.com/LeventeLantos/campaign-messaging/internal/config"
	"github.com/LeventeLantos/campaign-messaging/internal/credentials"
	"github.com/LeventeLantos/campaign-messaging/internal/service"
	"github.com/LeventeLantos/campaign-messaging/internal/store"
	"github.com/LeventeLantos/campaign-messaging/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis unreachable at %s: %v", cfg.Redis.Address, err)
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("connecting to postgres: %v", err)
	}
	defer pool.Close()

	// Everything is constructed once here and passed explicitly; no
	// package-level singletons.
	campaignStore := store.NewRedisStore(rdb, cfg.Redis.CampaignTTL)
	resolver := credentials.NewResolver(credentials.NewPostgresSource(pool))
	whatsapp := client.NewWhatsAppClient(cfg.Delivery.APIURL)
	processor := service.NewProcessor(campaignStore, resolver, whatsapp)

	w, err := worker.New(campaignStore, processor, worker.Options{
		BatchSize:            cfg.Worker.BatchSize,
		MaxConcurrentBatches: cfg.Worker.MaxConcurrentBatches,
		CycleDelay:           cfg.Worker.CycleDelay,
		IdleWait:             cfg.Worker.IdleWait,
		LongIdleWait:         cfg.Worker.LongIdleWait,
		EmptyCycleLimit:      cfg.Worker.EmptyCycleLimit,
	})
	if err != nil {
		log.Fatal(err)
	}
	w.Start()

	h := api.NewHandler(campaignStore, resolver, w, api.Limits{
		MaxMessagesPerCampaign: cfg.Limits.MaxMessagesPerCampaign,
		MaxCSVBytes:            int64(cfg.Limits.MaxCSVSizeMB) << 20,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(h)),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Stop blocks until the in-flight cycle and its dispatches finish.
	w.Stop()

	_ = rdb.Close()
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
