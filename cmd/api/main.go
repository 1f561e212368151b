package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/vpscenter/authd/internal/config"
	delivery "github.com/vpscenter/authd/internal/delivery/http"
	"github.com/vpscenter/authd/internal/domain"
	"github.com/vpscenter/authd/internal/repository"
	"github.com/vpscenter/authd/internal/usecase"
	"github.com/vpscenter/authd/pkg/security"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	cfg := config.Load()

	e := echo.New()
	e.HideBanner = true

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open PostgreSQL connection: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to reach PostgreSQL: %v", err)
	}

	userRepo := repository.NewPostgresUserRepo(db)

	var blacklist domain.TokenBlacklist
	var pgBlacklist *repository.PostgresBlacklist
	switch cfg.BlacklistBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		blacklist = repository.NewRedisBlacklist(rdb)
	default:
		pgBlacklist = repository.NewPostgresBlacklist(db)
		blacklist = pgBlacklist
	}

	tokens := security.NewTokenIssuer(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)

	hashParams := security.HashParams{
		MemoryKiB:   cfg.HashMemoryKiB,
		Iterations:  cfg.HashIterations,
		Parallelism: cfg.HashParallelism,
	}

	authUsecase := usecase.NewAuthUsecase(userRepo, blacklist, tokens, usecase.Options{
		Hash:       hashParams,
		TOTPIssuer: cfg.TOTPIssuer,
		TOTPWindow: cfg.TOTPWindow,
	})

	if err := bootstrapAdmin(context.Background(), cfg, userRepo, hashParams); err != nil {
		log.Fatalf("Failed to bootstrap admin account: %v", err)
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	// Brute-force resistance is hashing cost plus rate limiting; the limiter
	// covers the two endpoints that accept credentials.
	loginLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.LoginRateLimit),
			Burst:     cfg.LoginRateBurst,
			ExpiresIn: 5 * time.Minute,
		}),
	})

	authn := delivery.Authenticate(tokens, blacklist, userRepo)

	v1 := e.Group("/v1")
	delivery.NewAuthHandler(v1, authUsecase, authn, loginLimiter)
	delivery.NewMFAHandler(v1, authUsecase, authn)
	delivery.NewAdminHandler(v1, authUsecase, authn)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if pgBlacklist != nil {
		go sweepBlacklist(sweepCtx, pgBlacklist)
	}

	go func() {
		log.Printf("Starting auth server on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Shutting down the server due to error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

// bootstrapAdmin creates the configured admin account on first start so a
// fresh deployment has a way in. Skipped when the account exists or no
// password is configured.
func bootstrapAdmin(ctx context.Context, cfg *config.Config, users *repository.PostgresUserRepo, params security.HashParams) error {
	if cfg.AdminPassword == "" {
		return nil
	}

	email := strings.ToLower(cfg.AdminEmail)
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword, params)
	if err != nil {
		return err
	}

	admin := &domain.User{Email: email, PasswordHash: hash, Role: domain.RoleAdmin}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}
	log.Printf("Bootstrapped admin account %s", email)
	return nil
}

// sweepBlacklist drops expired revocation rows hourly. Correctness never
// depends on it: lookups already filter on expiry.
func sweepBlacklist(ctx context.Context, blacklist *repository.PostgresBlacklist) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := blacklist.PurgeExpired(ctx)
			if err != nil {
				log.Printf("Blacklist purge failed: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("Purged %d expired blacklist entries", purged)
			}
		}
	}
}
