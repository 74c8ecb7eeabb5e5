package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-screening-room/internal/config"
	"github.com/iliyamo/cinema-screening-room/internal/database"
	"github.com/iliyamo/cinema-screening-room/internal/handler"
	xlog "github.com/iliyamo/cinema-screening-room/internal/log"
	"github.com/iliyamo/cinema-screening-room/internal/media"
	"github.com/iliyamo/cinema-screening-room/internal/middleware"
	"github.com/iliyamo/cinema-screening-room/internal/queue"
	"github.com/iliyamo/cinema-screening-room/internal/realtime"
	"github.com/iliyamo/cinema-screening-room/internal/repository"
	"github.com/iliyamo/cinema-screening-room/internal/router"
	"github.com/iliyamo/cinema-screening-room/internal/screening"
	publisher "github.com/iliyamo/cinema-screening-room/internal/service"
)

func main() {
	xlog.Configure(xlog.Config{})
	logger := xlog.WithComponent("main")

	cfg := config.Load()

	db, err := openDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}
	repo := repository.NewSessionRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	opts := []screening.Option{}
	if cfg.RabbitURL != "" {
		opts = append(opts, screening.WithPublisher(publisher.NewStatusPublisher(cfg.RabbitURL)))
		go func() {
			if err := queue.StartStatusConsumer(ctx, cfg.RabbitURL, cfg.AuditLogPath); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("status consumer stopped")
			}
		}()
	} else {
		logger.Info().Msg("RABBITMQ_URL not set; status events disabled")
	}
	engine := screening.NewEngine(cfg.Screening.Engine(), repo, hub, opts...)
	engine.Start()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	rlCfg := config.LoadRateLimitConfig()
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.NewTokenBucket(rlCfg, rdb))

	catalog := media.Catalog{MediaDir: cfg.Media.MediaDir, PosterDir: cfg.Media.PosterDir}
	prober := media.NewProber(cfg.Media.FFprobeBin, cfg.Media.ProbeTimeout)
	clips := handler.PlaylistClips{Intro: cfg.Media.IntroVideo, Outro: cfg.Media.OutroVideo, StaticPrefix: cfg.Media.StaticPrefix}

	ws := realtime.NewServer(hub, engine, middleware.AdminAuthorizer(cfg.JWTSecret))
	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Engine: engine}, ws)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg), middleware.NewTokenBucket(rlCfg.ForLogin(), rdb))
	router.RegisterAdmin(e, handler.NewAdminSessionHandler(repo, engine, catalog, prober, clips, cache), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicSessionHandler(repo, engine), cache.Middleware())

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("db_driver", cfg.DBDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Screening.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine shutdown incomplete")
	}
	hub.CloseAll()
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info().Msg("stopped")
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.DBDriver == "sqlite" {
		return database.OpenSQLite(cfg.SQLitePath)
	}
	return database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
}
