package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/config"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/core"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/httpapi"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/obs"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/store/pg"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/sweep"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseDSN == "" {
		log.Fatal("missing DSN: set SNACKS_PG_DSN")
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	provider, err := identity.NewJWTProvider(db, cfg.TokenSecret, identity.WithIssuer(cfg.TokenIssuer))
	if err != nil {
		log.Fatalf("identity provider: %v", err)
	}

	auditLogger := audit.NewLogger(pg.NewAuditStore(db))
	store := pg.New(db)

	svc, err := core.NewService(store, provider, auditLogger, core.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		log.Fatalf("core service: %v", err)
	}

	api := httpapi.New(svc, provider, httpapi.ReadyProbe{DB: db}, httpapi.Limits{
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RateBurst:      cfg.RateBurst,
		RatePerSecond:  cfg.RatePerSecond,
		AllowedOrigins: cfg.AllowedOrigins,
	}, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := sweep.New(store, auditLogger, sweep.WithRetention(cfg.SessionRetention))
	go sweeper.Run(ctx, cfg.SweepHourly, cfg.SweepDaily)

	log.Printf("Starting snacks-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = db.Close()
	log.Println("Stopped")
}
