package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/handler"
	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/repository"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/cache"
	"github.com/noah-isme/sma-substitute-api/pkg/config"
	"github.com/noah-isme/sma-substitute-api/pkg/database"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/jobs"
	"github.com/noah-isme/sma-substitute-api/pkg/logger"
	"github.com/noah-isme/sma-substitute-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-substitute-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-substitute-api/pkg/roster"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

const (
	janitorInterval = time.Hour
	jobRetention    = 24 * time.Hour
)

type application struct {
	router  *gin.Engine
	queue   *jobs.Queue
	closers []func() error
	logger  *zap.Logger
}

// Close stops the worker pool and releases connections in reverse order of acquisition.
func (a *application) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
}

func bootstrap(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*application, error) {
	app := &application{logger: logr}
	validate := validator.New()
	metrics := service.NewMetricsService()
	location := cfg.Timetable.Location()

	var (
		db      *sqlx.DB
		records service.TimetableRecordStore
		deps    = service.NoticeDeps{Metrics: metrics, Validator: validate}
		err     error
	)
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, db.Close)
		if err := database.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		records = repository.NewTimetableRecordRepository(db)
		deps.Log = repository.NewNoticeRepository(db)
	}

	rosterSource, err := buildRoster(cfg.Timetable, db)
	if err != nil {
		return nil, err
	}
	deps.Roster = rosterSource

	cacheService, err := buildCache(ctx, cfg, metrics, logr, app)
	if err != nil {
		return nil, err
	}

	files, err := storage.NewLocalStorage(cfg.Notices.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("notice storage: %w", err)
	}
	deps.Files = files
	deps.Signer = storage.NewSignedURLSigner(cfg.Notices.SignedURLSecret, cfg.Notices.SignedURLTTL)
	deps.PDF = export.NewPDFExporter(cfg.Notices.PDFFont)
	if err := wireObjectStore(ctx, cfg, &deps); err != nil {
		return nil, err
	}
	if cfg.Events.Enabled {
		publisher, err := messaging.NewPublisher(cfg.Events, logr)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, publisher.Close)
		deps.Events = publisher
	}

	store := service.NewSnapshotStore()
	timetable := service.NewTimetableService(store, records, cacheService, metrics, service.IndexOptions{
		Periods:        cfg.Timetable.Periods,
		UnknownTeacher: cfg.Timetable.UnknownTeacher,
	}, logr)
	if records != nil {
		if _, err := timetable.Rebuild(ctx); err != nil {
			logr.Warn("no stored timetable restored at startup", zap.Error(err))
		}
	}

	availability := service.NewAvailabilityService(store, rosterSource, cacheService, cfg.Cache.AvailabilityTTL, logr)
	exporter := service.NewExportService(timetable, export.NewCSVExporter(), deps.PDF)
	notices := service.NewNoticeService(store, deps, service.NoticeConfig{
		TemplatePath: cfg.Notices.TemplatePath,
		APIPrefix:    cfg.APIPrefix,
		Concurrency:  cfg.Notices.WorkerConcurrency,
		Location:     location,
	}, logr)

	jobStore := service.NewNoticeJobStore()
	worker := service.NewNoticeWorker(jobStore, notices, logr)
	app.queue = jobs.NewQueue("notices", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notices.WorkerConcurrency,
		MaxRetries: cfg.Notices.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnFailure:  worker.Fail,
		Logger:     logr,
	})
	app.queue.Start(ctx)
	loginLimiter := middleware.NewRateLimiter(cfg.Login.Attempts, cfg.Login.Window, cfg.Login.Block)
	go runJanitor(ctx, janitorTargets{jobs: jobStore, files: files, limiter: loginLimiter}, cfg.Notices.SignedURLTTL, logr)

	auth := service.NewAuthService(cfg.Accounts, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "sma-substitute-api",
	})
	if len(cfg.Accounts) == 0 {
		logr.Warn("no accounts configured, set ADMIN_PASSWORD_HASH or OPERATOR_PASSWORD_HASH to enable login")
	}

	timetableHandler := handler.NewTimetableHandler(timetable, availability, exporter, location)
	app.router = buildRouter(cfg, logr, metrics, auth, loginLimiter, handler.Handlers{
		Auth:      handler.NewAuthHandler(auth),
		Timetable: timetableHandler,
		Notice:    handler.NewNoticeHandler(notices, service.NewNoticeBatchService(jobStore, app.queue, validate, logr)),
		Metrics:   handler.NewMetricsHandler(metrics, timetable),
	})
	return app, nil
}

func buildRoster(cfg config.TimetableConfig, db *sqlx.DB) (service.RosterSource, error) {
	if cfg.RosterFile != "" {
		names, err := roster.Load(cfg.RosterFile)
		if err != nil {
			return nil, err
		}
		return roster.Static(names), nil
	}
	if db != nil {
		return repository.NewTeacherRosterRepository(db), nil
	}
	return nil, nil
}

func buildCache(ctx context.Context, cfg *config.Config, metrics *service.MetricsService, logr *zap.Logger, app *application) (*service.CacheService, error) {
	if !cfg.Cache.Enabled {
		return service.NewCacheService(nil, metrics, cfg.Cache.AvailabilityTTL, logr, false), nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	repo := repository.NewCacheRepository(client, logr)
	app.closers = append(app.closers, repo.Close)
	return service.NewCacheService(repo, metrics, cfg.Cache.AvailabilityTTL, logr, true), nil
}

func wireObjectStore(ctx context.Context, cfg *config.Config, deps *service.NoticeDeps) error {
	if !cfg.Minio.Enabled {
		if cfg.Notices.TemplateSource == config.TemplateSourceMinio {
			return errors.New("NOTICE_TEMPLATE_SOURCE=minio requires ENABLE_MINIO")
		}
		templates, err := storage.NewLocalStorage(".")
		if err != nil {
			return err
		}
		deps.Templates = templates
		return nil
	}

	client, err := storage.NewMinioClient(cfg.Minio)
	if err != nil {
		return err
	}
	objects := storage.NewMinioStorage(client, cfg.Minio.Bucket)
	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}
	deps.Mirror = objects
	if cfg.Notices.TemplateSource == config.TemplateSourceMinio {
		deps.Templates = objects
		return nil
	}
	templates, err := storage.NewLocalStorage(".")
	if err != nil {
		return err
	}
	deps.Templates = templates
	return nil
}

func buildRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, tokens middleware.TokenValidator, limiter *middleware.RateLimiter, handlers handler.Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	handler.RegisterRoutes(r, handler.RouteConfig{
		Prefix:       cfg.APIPrefix,
		Validator:    tokens,
		Logger:       logr,
		LoginLimiter: limiter.Middleware(),
	}, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	return r
}

type janitorTargets struct {
	jobs    *service.NoticeJobStore
	files   *storage.LocalStorage
	limiter *middleware.RateLimiter
}

// runJanitor prunes finished batch jobs, notice files whose download links have expired and idle login limiters.
func runJanitor(ctx context.Context, targets janitorTargets, fileTTL time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			pruned := targets.jobs.Prune(now.Add(-jobRetention))
			targets.limiter.Sweep(janitorInterval)
			removed, err := targets.files.CleanupOlderThan(fileTTL)
			if err != nil {
				logr.Warn("notice cleanup failed", zap.Error(err))
			}
			if pruned > 0 || len(removed) > 0 {
				logr.Info("janitor pass", zap.Int("jobs_pruned", pruned), zap.Int("files_removed", len(removed)))
			}
		}
	}
}
