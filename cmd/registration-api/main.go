package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	_ "github.com/noah-isme/krs-admission-api/api/swagger"
	"github.com/noah-isme/krs-admission-api/internal/handler"
	"github.com/noah-isme/krs-admission-api/internal/models"
	"github.com/noah-isme/krs-admission-api/internal/repository"
	"github.com/noah-isme/krs-admission-api/internal/server"
	"github.com/noah-isme/krs-admission-api/internal/service"
	"github.com/noah-isme/krs-admission-api/pkg/cache"
	"github.com/noah-isme/krs-admission-api/pkg/config"
	"github.com/noah-isme/krs-admission-api/pkg/database"
	"github.com/noah-isme/krs-admission-api/pkg/jobs"
	"github.com/noah-isme/krs-admission-api/pkg/logger"
	"github.com/noah-isme/krs-admission-api/pkg/mq"
)

// @title KRS Admission API
// @version 1.0.0
// @description Course registration admission control: eligibility windows, schedule conflicts and a priority admission queue.
// @BasePath /api/v1
// @schemes http

const shutdownTimeout = 15 * time.Second

type sectionStore interface {
	UpsertSection(ctx context.Context, section models.Section) (models.Section, error)
	ListSections(ctx context.Context, periodID, courseID string) ([]models.Section, error)
	ListAlternatives(ctx context.Context, periodID, courseID, excludeClassID string) ([]models.Section, error)
	Reserve(ctx context.Context, mutation models.SeatMutation) (models.SeatMutationResult, error)
	Release(ctx context.Context, mutation models.SeatMutation) (models.SeatMutationResult, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	clk := clock.RealClock{}
	validate := validator.New()
	metrics := service.NewMetricsService()

	cacheRepo, closeCache, err := newCacheRepository(ctx, cfg, clk, logr)
	if err != nil {
		return err
	}
	defer closeCache()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)

	var (
		eligibility *service.EligibilityService
		sections    sectionStore
	)
	if cfg.Database.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		eligibility = service.NewEligibilityService(repository.NewPeriodRepository(db), cacheSvc, clk, validate, logr)
		sections = repository.NewSectionRepository(db)
	} else {
		logr.Warn("database disabled, registration state is kept in memory; load sections through PUT /sections")
		eligibility = service.NewEligibilityService(nil, cacheSvc, clk, validate, logr)
		sections = repository.NewMemorySectionRepository()
	}
	if err := eligibility.Load(ctx); err != nil {
		return fmt.Errorf("load registration periods: %w", err)
	}
	if _, err := eligibility.RefreshStatus(ctx); err != nil {
		logr.Warn("initial status refresh failed", zap.Error(err))
	}

	queue := jobs.NewQueue("registration", jobs.QueueConfig{
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		Timeout:       cfg.Queue.Timeout,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		RetryDelay:    cfg.Queue.RetryDelay,
	}, jobs.WithClock(clk), jobs.WithLogger(logr), jobs.WithMetrics(metrics))
	queue.Start(context.Background())

	schedule := service.NewScheduleConflictService(queue, sections, cacheSvc, cfg.Queue.LookupPriority, cfg.Cache.TTL, logr)

	opts := []service.RegistrationOption{service.WithRegistrationClock(clk)}
	if cfg.AMQP.Enabled {
		publisher, err := mq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logr)
		if err != nil {
			return err
		}
		defer publisher.Close() //nolint:errcheck
		opts = append(opts, service.WithSettlementPublisher(publisher))
	}
	registration := service.NewRegistrationService(eligibility, schedule, queue, sections, cacheSvc, cfg.Queue.DefaultPriority, logr, opts...)

	router := server.NewRouter(cfg, server.Handlers{
		Periods:       handler.NewPeriodHandler(eligibility),
		Schedules:     handler.NewScheduleHandler(schedule, validate),
		Registrations: handler.NewRegistrationHandler(registration, validate),
		Sections:      handler.NewSectionHandler(service.NewSectionService(sections, eligibility, cacheSvc, logr), validate),
		Metrics:       handler.NewMetricsHandler(metrics),
	}, metrics, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return jobs.Every(gctx, clk, cfg.Eligibility.RefreshInterval, func(ctx context.Context) {
			changed, err := eligibility.RefreshStatus(ctx)
			if err != nil {
				logr.Warn("period status refresh failed", zap.Error(err))
				return
			}
			if len(changed) > 0 {
				logr.Info("period statuses refreshed", zap.Strings("period_ids", changed))
			}
		})
	})
	g.Go(func() error {
		return jobs.Every(gctx, clk, cfg.Cache.SweepInterval, func(ctx context.Context) {
			if err := cacheSvc.SweepExpired(ctx); err != nil {
				logr.Debug("cache sweep skipped", zap.Error(err))
			}
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		logr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		queue.Stop()
		registration.WaitForSettlements()
		return err
	})

	return g.Wait()
}

func newCacheRepository(ctx context.Context, cfg *config.Config, clk clock.PassiveClock, logr *zap.Logger) (service.CacheRepository, func(), error) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return repository.NewMemoryCacheRepository(cfg.Cache.TTL, logr, repository.WithCacheClock(clk)), func() {}, nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewCacheRepository(client, logr)
	return repo, func() { _ = repo.Close() }, nil
}
