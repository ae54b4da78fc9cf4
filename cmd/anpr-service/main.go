package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vehicle-anpr/internal/config"
	"vehicle-anpr/internal/db"
	"vehicle-anpr/internal/domain/anpr"
	httphandler "vehicle-anpr/internal/http"
	"vehicle-anpr/internal/imaging"
	"vehicle-anpr/internal/inference"
	"vehicle-anpr/internal/ocr"
	"vehicle-anpr/internal/region"
	"vehicle-anpr/internal/repository"
	"vehicle-anpr/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.Log)

	mainDB, err := db.Connect(cfg.Database.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.Migrate(mainDB); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	regionDB := mainDB
	if cfg.RegionDatabase.DSN != cfg.Database.DSN {
		regionDB, err = db.Connect(cfg.RegionDatabase.DSN, log.With().Str("store", "region").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to region database")
		}
	}

	repo := repository.NewANPRRepository(mainDB)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.RegionTable.Seed) > 0 {
		seedRegions(ctx, regionDB, regionDB != mainDB, cfg.RegionTable.Seed, log)
	}
	regionStatus, resolver := loadRegions(ctx, regionDB, cfg.RegionTable, log)

	loc, err := time.LoadLocation(cfg.Records.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid records timezone")
	}

	client := inference.NewClient(inference.ClientConfig{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	})
	orchestrator := inference.NewOrchestrator(client, inference.Models{
		Vehicle:  cfg.Inference.VehicleModel,
		Color:    cfg.Inference.ColorModel,
		Plate:    cfg.Inference.PlateModel,
		Fallback: cfg.Inference.FallbackModel,
	}, log)

	extractor := ocr.NewExtractor(ocr.NewTesseract(ocr.TesseractConfig{
		Language:      cfg.OCR.Language,
		AllowHyphen:   cfg.OCR.AllowHyphen,
		MaxConcurrent: cfg.OCR.MaxConcurrent,
	}), cfg.OCR.Timeout, log)

	anprService := service.NewANPRService(service.Deps{
		Orchestrator: orchestrator,
		Preprocessor: imaging.NewPreprocessor(imaging.Options{
			ScaleFactor: cfg.Preprocess.ScaleFactor,
			PaddingPx:   cfg.Preprocess.PaddingPx,
		}),
		Extractor: extractor,
		Resolver:  resolver,
		Writer:    service.NewRecordWriter(repo, loc, log),
		Repo:      repo,
		Runs:      service.NewRuns(),
		Region:    regionStatus,
	}, log)

	adminService := service.NewAdminService(repo, log)
	if cfg.Auth.AdminID != "" {
		if err := adminService.EnsureAdmin(ctx, cfg.Auth.AdminID, cfg.Auth.AdminPassword); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap admin")
		}
	}

	tokens := httphandler.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), httphandler.RequestLogger(log))
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))

	handler := httphandler.NewHandler(anprService, adminService, tokens, cfg, log)
	handler.Register(router, httphandler.AuthMiddleware(tokens))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting anpr service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Str("service", "anpr").Logger()
}

// loadRegions fetches the region table once. Failure is logged once and the
// service keeps running with an empty table.
func loadRegions(ctx context.Context, gdb *gorm.DB, cfg config.RegionTableConfig, log zerolog.Logger) (service.RegionStatus, *region.Resolver) {
	policy := region.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Multiplier:  cfg.Multiplier,
	}

	table, err := region.Load(ctx, repository.NewANPRRepository(gdb), policy, log)
	states, districts := table.Len()
	status := service.RegionStatus{States: states, Districts: districts}
	if err != nil {
		log.Error().Err(err).Msg("region table unavailable, plates will resolve to Unknown Region")
		status.LoadError = err.Error()
	}
	return status, region.NewResolver(table)
}

// seedRegions fills an empty region table from config. Errors are logged and
// left to loadRegions to surface.
func seedRegions(ctx context.Context, gdb *gorm.DB, migrate bool, rows []config.RegionSeedRow, log zerolog.Logger) {
	if migrate {
		if err := gdb.WithContext(ctx).AutoMigrate(&repository.RTO{}); err != nil {
			log.Error().Err(err).Msg("failed to prepare region table")
			return
		}
	}

	entries := make([]anpr.RTOEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, anpr.RTOEntry{Code: row.Code, State: row.State, District: row.District})
	}
	if _, err := region.Seed(ctx, repository.NewANPRRepository(gdb), entries, log); err != nil {
		log.Error().Err(err).Msg("failed to seed region table")
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Session-ID")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
