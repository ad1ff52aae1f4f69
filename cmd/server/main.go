package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/config"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/database"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/handler"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/logger"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/middleware"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/queue"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/repository"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/router"
	"github.com/Medu-coder/Area-privada-clinicas-v2/internal/service"
)

// availabilityCache is the cache namespace of the availability reads.
const availabilityCache = "availability"

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()
	logger.InitLogger("clinic-portal", cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	defer func() { _ = db.Close() }()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	cacheCfg := config.LoadCacheConfig()
	rateCfg := config.LoadRateLimitConfig()

	var notifier service.Notifier = queue.LogNotifier{}
	if cfg.EventsEnabled {
		notifier = queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue)
		go func() {
			if err := queue.StartConsumer(ctx, cfg.RabbitMQURL, cfg.EventsQueue, cfg.EventsLogPath); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	store := repository.NewSQLStore(db, cfg.DBDriver)
	svc := service.NewReservationService(store, service.Options{
		Mode:        service.Mode(cfg.ReservationMode),
		Timeout:     cfg.ReservationTimeout,
		SlotMinutes: cfg.SlotMinutes,
		Notifier:    notifier,
	})

	purge := func(ctx context.Context) {
		n, err := middleware.PurgeCache(ctx, cacheCfg, rdb, availabilityCache)
		if err != nil {
			logger.FromContext(ctx).Warn().Err(err).Msg("purge availability cache")
			return
		}
		logger.FromContext(ctx).Debug().Int("keys", n).Msg("availability cache purged")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())

	limiter := middleware.NewTokenBucket(rateCfg, rdb)
	router.RegisterRoutes(e, handler.NewHealthHandler(db))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewUserRepo(db), repository.NewTokenRepo(db)), cfg.JWTSecret, limiter)
	appointments := handler.NewAppointmentHandler(svc, purge)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(svc), appointments, middleware.NewRedisCache(cacheCfg, rdb, availabilityCache))
	router.RegisterPatient(e, appointments, cfg.JWTSecret, limiter)
	router.RegisterStaff(e, handler.NewStaffHandler(svc, purge), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("mode", string(svc.Mode())).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}
