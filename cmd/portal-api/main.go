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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Serrius/Educore-sub002/api/swagger"
	"github.com/Serrius/Educore-sub002/internal/handler"
	"github.com/Serrius/Educore-sub002/internal/middleware"
	"github.com/Serrius/Educore-sub002/internal/models"
	"github.com/Serrius/Educore-sub002/internal/repository"
	"github.com/Serrius/Educore-sub002/internal/service"
	"github.com/Serrius/Educore-sub002/pkg/cache"
	"github.com/Serrius/Educore-sub002/pkg/config"
	"github.com/Serrius/Educore-sub002/pkg/database"
	"github.com/Serrius/Educore-sub002/pkg/jobs"
	"github.com/Serrius/Educore-sub002/pkg/logger"
	corsmiddleware "github.com/Serrius/Educore-sub002/pkg/middleware/cors"
	reqidmiddleware "github.com/Serrius/Educore-sub002/pkg/middleware/requestid"
	"github.com/Serrius/Educore-sub002/pkg/storage"
)

// @title Educore Organization Portal API
// @version 1.0.0
// @description Campus organization management: accreditation, fees, payments, ledger, announcements.
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewMySQL(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	fileStore, err := storage.NewLocalStorage(cfg.Accreditation.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Accreditation.SignedURLSecret, cfg.Accreditation.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	orgRepo := repository.NewOrganizationRepository(db)
	accreditationRepo := repository.NewAccreditationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "educore-portal",
	})
	yearSvc := service.NewAcademicYearService(yearRepo, validate, logr)
	orgSvc := service.NewOrganizationService(orgRepo, yearSvc, validate, logr)
	accreditationSvc := service.NewAccreditationService(
		accreditationRepo, orgRepo, yearSvc, fileStore, signer,
		validate, logr, cfg.Accreditation.MaxFileSize, cfg.Accreditation.AllowedMIMEs,
	)
	notificationSvc := service.NewNotificationService(notificationRepo, cacheRepo, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, cfg.Notifications.UnreadCacheTTL)
	reviewSvc := service.NewReviewService(
		accreditationRepo, orgRepo, notificationSvc, userRepo,
		validate, logr, cfg.Accreditation.SuperAdminID,
	)
	feeSvc := service.NewFeeService(feeRepo, orgRepo, yearSvc, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, feeRepo, notificationSvc, userRepo, validate, logr)
	ledgerSvc := service.NewLedgerService(ledgerRepo, orgRepo, yearSvc, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, orgRepo, notificationSvc, validate, logr)
	exportSvc := service.NewExportService(feeSvc, ledgerSvc, orgSvc, logr)
	metricsSvc := service.NewMetricsService()
	dashboardSvc := service.NewDashboardService(orgRepo, accreditationRepo, feeRepo, notificationSvc, yearSvc, cacheRepo, metricsSvc, logr, cfg.Dashboard.CacheTTL)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	yearHandler := handler.NewAcademicYearHandler(yearSvc)
	orgHandler := handler.NewOrganizationHandler(orgSvc)
	accreditationHandler := handler.NewAccreditationHandler(accreditationSvc, reviewSvc, metricsSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	ledgerHandler := handler.NewLedgerHandler(ledgerSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	reportHandler := handler.NewReportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	orgManagers := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleOrgAdmin)

	years := authed.Group("/academic-years")
	{
		years.GET("", yearHandler.List)
		years.GET("/active", yearHandler.Active)
		years.POST("", adminOnly, yearHandler.Create)
		years.POST("/:id/activate", adminOnly, middleware.Audit(userRepo, "YEAR_ACTIVATE", "academic_year"), yearHandler.Activate)
		years.POST("/:id/close", adminOnly, middleware.Audit(userRepo, "YEAR_CLOSE", "academic_year"), yearHandler.Close)
	}

	orgs := authed.Group("/organizations")
	{
		orgs.GET("", orgHandler.List)
		orgs.GET("/:id", orgHandler.Get)
		orgs.POST("", adminOnly, orgHandler.Create)
		orgs.PUT("/:id", orgManagers, orgHandler.Update)
		orgs.POST("/:id/renew", orgManagers, orgHandler.Renew)
		orgs.DELETE("/:id", adminOnly, orgHandler.Delete)
		orgs.GET("/:id/collections", feeHandler.CollectionSummary)
		orgs.GET("/:id/balance", ledgerHandler.Balance)
	}

	accreditation := authed.Group("/accreditation")
	{
		accreditation.POST("/documents", orgManagers, accreditationHandler.Submit)
		accreditation.PUT("/documents/:id", orgManagers, accreditationHandler.Resubmit)
		accreditation.GET("/documents", accreditationHandler.List)
		accreditation.GET("/organizations/:id/requirements", accreditationHandler.Requirements)
		accreditation.POST("/documents/:id/review", adminOnly, accreditationHandler.Review)
		accreditation.POST("/finalize", middleware.RequireRoles(models.RoleSuperAdmin), accreditationHandler.Finalize)
		accreditation.POST("/documents/:id/download-token", accreditationHandler.SignDownload)
	}
	// Downloads carry their own signed token, no session required. Claims are
	// still attached when present so the access log can name the caller.
	api.GET("/accreditation/download", middleware.OptionalJWT(authSvc), accreditationHandler.Download)

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
	}

	fees := authed.Group("/fees")
	{
		fees.GET("", feeHandler.List)
		fees.GET("/:id", feeHandler.Get)
		fees.POST("", orgManagers, feeHandler.Create)
		fees.PUT("/:id", orgManagers, feeHandler.Update)
		fees.DELETE("/:id", orgManagers, feeHandler.Delete)
	}

	payments := authed.Group("/payments")
	{
		payments.GET("", paymentHandler.List)
		payments.POST("", orgManagers, paymentHandler.Record)
		payments.DELETE("/:id", adminOnly, paymentHandler.Void)
	}

	ledger := authed.Group("/ledger")
	{
		ledger.GET("", ledgerHandler.List)
		ledger.POST("", orgManagers, ledgerHandler.Record)
	}

	announcements := authed.Group("/announcements")
	{
		announcements.GET("", announcementHandler.List)
		announcements.GET("/:id", announcementHandler.Get)
		announcements.POST("", orgManagers, middleware.Audit(userRepo, "ANNOUNCEMENT_PUBLISH", "announcement"), announcementHandler.Create)
		announcements.PUT("/:id", orgManagers, announcementHandler.Update)
		announcements.DELETE("/:id", orgManagers, announcementHandler.Delete)
	}

	if cfg.Dashboard.Enabled {
		authed.GET("/dashboard", dashboardHandler.Summary)
	}

	if cfg.Reports.Enabled {
		reports := authed.Group("/reports", orgManagers)
		reports.GET("/organizations/:id/collections", reportHandler.Collections)
		reports.GET("/organizations/:id/ledger", reportHandler.Ledger)
	}

	authed.GET("/metrics/snapshot", adminOnly, metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
