package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fitclass-api/api/swagger"
	"github.com/noah-isme/fitclass-api/internal/handler"
	"github.com/noah-isme/fitclass-api/internal/middleware"
	"github.com/noah-isme/fitclass-api/internal/repository"
	"github.com/noah-isme/fitclass-api/internal/router"
	"github.com/noah-isme/fitclass-api/internal/service"
	"github.com/noah-isme/fitclass-api/pkg/cache"
	"github.com/noah-isme/fitclass-api/pkg/config"
	"github.com/noah-isme/fitclass-api/pkg/database"
	"github.com/noah-isme/fitclass-api/pkg/events"
	"github.com/noah-isme/fitclass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fitclass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fitclass-api/pkg/middleware/requestid"
	"github.com/noah-isme/fitclass-api/pkg/tracing"
)

// @title FitClass Scheduling API
// @version 1.0.0
// @description Recurring class schedules, schedule changes with makeups, maintenance windows and attendance.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logr)
	if err != nil {
		logr.Warn("tracing disabled", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()
	probes := map[string]handler.HealthProbe{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, schedule cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			probes["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Schedule.CacheTTL, logr, cacheRepo != nil)

	var publisher events.Publisher
	if cfg.Notifications.Enabled {
		natsPublisher, err := events.NewNatsPublisher(cfg.Notifications.NATSURL, logr)
		if err != nil {
			logr.Warn("nats unavailable, notifications will only be logged", zap.Error(err))
		} else {
			publisher = natsPublisher
		}
	}
	notifications := service.NewNotificationService(publisher, service.NotificationConfig{
		SubjectPrefix: cfg.Notifications.SubjectPrefix,
		Workers:       cfg.Notifications.Workers,
		Retries:       cfg.Notifications.Retries,
		RetryDelay:    cfg.Notifications.RetryDelay,
	}, metricsSvc, logr)
	notifications.Start(ctx)
	defer notifications.Stop()

	scheduleCfg := service.ScheduleConfig{
		Location:          cfg.Schedule.Location(),
		CacheTTL:          cfg.Schedule.CacheTTL,
		MaintenancePolicy: cfg.Schedule.MaintenanceConflictPolicy,
	}
	validate := service.NewValidator()

	classRepo := repository.NewClassRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	equipmentRepo := repository.NewEquipmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	changeRepo := repository.NewScheduleChangeRepository(db)
	maintenanceRepo := repository.NewMaintenanceRepository(db)
	locks := repository.NewLockRepository()

	conflicts := service.NewConflictService(classRepo, changeRepo, maintenanceRepo, roomRepo, metricsSvc, logr, scheduleCfg.Location)
	attendanceSvc := service.NewAttendanceService(db, attendanceRepo, classRepo, enrollmentRepo, locks, cacheSvc, metricsSvc, validate, logr, scheduleCfg)
	classSvc := service.NewClassService(db, classRepo, roomRepo, changeRepo, enrollmentRepo, conflicts, locks, attendanceSvc, cacheSvc, notifications, validate, logr, scheduleCfg)
	changeSvc := service.NewScheduleChangeService(db, changeRepo, classRepo, enrollmentRepo, conflicts, locks, cacheSvc, notifications, metricsSvc, validate, logr, scheduleCfg)
	maintenanceSvc := service.NewMaintenanceService(db, maintenanceRepo, roomRepo, equipmentRepo, classRepo, conflicts, locks, notifications, metricsSvc, validate, logr, scheduleCfg)
	enrollmentSvc := service.NewEnrollmentService(db, enrollmentRepo, classRepo, locks, logr, scheduleCfg)
	exportSvc := service.NewExportService(classRepo, attendanceRepo, nil, nil, logr, scheduleCfg)
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metricsSvc))
	}

	router.Register(r, cfg.APIPrefix, authSvc, router.Handlers{
		Classes:         handler.NewClassHandler(classSvc),
		ScheduleChanges: handler.NewScheduleChangeHandler(changeSvc),
		Attendance:      handler.NewAttendanceHandler(attendanceSvc, exportSvc),
		Enrollments:     handler.NewEnrollmentHandler(enrollmentSvc),
		Maintenance:     handler.NewMaintenanceHandler(maintenanceSvc),
		Rooms:           handler.NewRoomHandler(conflicts),
		Metrics:         handler.NewMetricsHandler(metricsSvc, probes),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Warn("tracing shutdown", zap.Error(err))
	}
}
