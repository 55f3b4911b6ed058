package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/evcore/fleet-api/internal/auth"
	"github.com/evcore/fleet-api/internal/config"
	"github.com/evcore/fleet-api/internal/database"
	"github.com/evcore/fleet-api/internal/handler"
	"github.com/evcore/fleet-api/internal/middleware"
	"github.com/evcore/fleet-api/internal/queue"
	"github.com/evcore/fleet-api/internal/repository"
	"github.com/evcore/fleet-api/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	perms := repository.NewPermissionRepo(db)

	ts := auth.NewTokenService(
		cfg.AccessSecret, cfg.RefreshSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour,
		tokens,
	)

	authHandler := handler.NewAuthHandler(cfg, users, perms, ts)
	permHandler := handler.NewPermissionHandler(perms)

	// Rate limiting degrades to a no-op when Redis is unreachable.
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), config.NewRedisClient())

	// Audit-log consumer runs for the life of the process and reconnects on
	// broker failure.
	go func() {
		if err := queue.StartAuthEventConsumer(); err != nil {
			log.Printf("auth event consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, limiter)
	router.RegisterAdmin(e, permHandler, authHandler)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
