package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse/internal/ai"
	"pulse/internal/auth"
	"pulse/internal/config"
	"pulse/internal/db"
	httpx "pulse/internal/http"
	"pulse/internal/ingest"
	"pulse/internal/mail"
	"pulse/internal/notify"
	"pulse/internal/push"
	"pulse/internal/subscription"
	"pulse/internal/task"

	"github.com/google/uuid"
)

func main() {
	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	jwtSvc := auth.NewJWT(cfg.JWTSecret)

	users := &auth.Users{DB: gdb}
	taskStore := &task.Store{DB: gdb}
	subs := &subscription.Service{DB: gdb}

	aiClient, err := ai.New(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.GroqModel)
	if err != nil {
		log.Fatal(err)
	}

	pipeline := &ingest.Pipeline{
		Access: subs,
		Users:  users,
		Mail:   mail.NewClient(cfg.GmailBaseURL),
		AI:     aiClient,
		Tasks:  taskStore,
	}

	r := httpx.NewRouter(cfg, gdb, jwtSvc, pipeline)

	scheduler := &notify.Scheduler{
		ID:          "scheduler-" + uuid.NewString(),
		Tasks:       taskStore,
		Users:       users,
		Push:        push.NewClient(cfg.FCMEndpoint, cfg.FCMServerKey),
		Copy:        aiClient,
		Hours:       cfg.NotifyHours,
		BatchSize:   cfg.NotifyBatchSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
