package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog/config"
	"nutrilog/controllers"
	"nutrilog/logging"
	"nutrilog/middlewares"
	"nutrilog/routes"
	"nutrilog/services"
	"nutrilog/store"
	"nutrilog/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open meal store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	var photos *utils.PhotoArchive
	if cfg.S3.Enabled() {
		photos, err = utils.NewS3PhotoArchive(ctx, cfg.S3.Region, cfg.S3.Bucket, cfg.S3.PublicURL)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to init S3 photo archive")
		}
	}

	hub := services.NewRealtimeHub()
	edamam := services.NewEdamamService(cfg.Edamam)
	mealSvc := services.NewMealService(st, edamam, hub, cfg.Meals.EntryPolicy)
	planner := services.NewMealPlanService(services.NewGeminiGenerator(cfg.Gemini))

	limiter := middlewares.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	secret := []byte(cfg.Auth.JWTSecret)
	deps := routes.Deps{
		JWTSecret: secret,
		Limiter:   limiter,
		Meals: controllers.NewMealController(
			services.NewLogMealService(cfg.LogMeal),
			photos,
			utils.UploadPolicy{Dir: cfg.Upload.Dir, MaxBytes: cfg.Upload.MaxBytes},
		),
		Diary:     controllers.NewDiaryController(mealSvc),
		Foods:     controllers.NewFoodController(edamam, planner),
		Analytics: controllers.NewAnalyticsController(services.NewAnalyticsService(st)),
		Realtime:  controllers.NewRealtimeController(hub),
	}
	if cfg.Server.Mode == gin.DebugMode {
		deps.Dev = controllers.NewDevController(secret)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           routes.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Driver).
			Str("entry_policy", cfg.Meals.EntryPolicy).
			Bool("s3_archive", photos != nil).
			Msg("nutrilog listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("graceful shutdown failed")
	}
}
