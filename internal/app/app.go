package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "unveil/docs"
	"unveil/internal/config"
	"unveil/internal/db"
	"unveil/internal/handlers"
	"unveil/internal/metrics"
	"unveil/internal/middleware"
	"unveil/internal/pdf"
	"unveil/internal/ratelimit"
	"unveil/internal/repositories"
	"unveil/internal/routes"
	"unveil/internal/services"
	"unveil/internal/utils"
)

// App — собранное приложение: роутер, фоновые задачи и то, что нужно закрыть.
type App struct {
	Config  *config.Config
	Router  *gin.Engine
	Cron    *cron.Cron
	Cleanup *services.CleanupService

	closers []func() error
}

type Option func(*options)

type options struct {
	mailer services.EmailService
}

// WithMailer подменяет отправщика писем (тесты, локальный запуск).
func WithMailer(m services.EmailService) Option {
	return func(o *options) { o.mailer = m }
}

func Run() {
	cfg := config.LoadConfig()
	utils.InitLogger(utils.LogOptions{
		AppName:    "unveil",
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg)
	if err != nil {
		utils.Logger.WithError(err).Fatal("[app] init failed")
	}
	defer a.Close()

	if cfg.Cleanup.Enabled {
		a.Cron.Start()
		defer a.Cron.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		utils.Logger.Infof("[app] listening on %s mode=%s store=%s ratelimit=%s mail=%s",
			srv.Addr, cfg.Server.Mode, cfg.Database.Driver, cfg.RateLimit.Backend, cfg.Email.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.WithError(err).Fatal("[app] server failed")
		}
	}()

	<-ctx.Done()
	utils.Logger.Info("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.WithError(err).Error("[app] graceful shutdown failed")
	}
}

// New собирает зависимости по конфигу. Cron создаётся, но не запускается.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	a := &App{Config: cfg}

	// === Store ===
	var (
		caseRepo repositories.CaseRepository
		voteRepo repositories.VoteLedger
		codeRepo repositories.VerificationCodeRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		utils.Logger.Warn("[app] using in-memory store; data is lost on restart and not shared between instances")
		mem := repositories.NewMemoryStore()
		caseRepo, voteRepo, codeRepo = mem.Cases(), mem.Votes(), mem.Codes()
	case "postgres":
		conn, err := openPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		caseRepo = repositories.NewCaseRepository(conn, cfg.Database.QueryTimeout)
		voteRepo = repositories.NewVoteLedger(conn, cfg.Database.QueryTimeout)
		codeRepo = repositories.NewVerificationCodeRepository(conn, cfg.Database.QueryTimeout)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	// === Rate limiter ===
	limiter, err := buildLimiter(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === Mail ===
	mailer := o.mailer
	if mailer == nil {
		if mailer, err = buildMailer(cfg.Email); err != nil {
			a.Close()
			return nil, err
		}
	}

	// === Metrics ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg)

	// === Services ===
	tokens := services.NewTokenService(cfg.Verification.JWTSecret, cfg.Verification.TokenExpiry)
	verificationService := services.NewVerificationService(codeRepo, limiter, mailer, tokens, rec, services.VerificationSettings{
		CodeExpiry:       cfg.Verification.CodeExpiry,
		MaxAttempts:      cfg.Verification.MaxAttempts,
		Cooldown:         cfg.Verification.Cooldown,
		IPAttemptCap:     cfg.Verification.IPAttemptCap,
		IPAttemptWindow:  cfg.Verification.IPAttemptWindow,
		IPHourlyIssueCap: cfg.Verification.IPHourlyIssueCap,
		BcryptCost:       cfg.Verification.BcryptCost,
		MailTimeout:      cfg.Email.Timeout,
	})
	voteService := services.NewVoteService(caseRepo, voteRepo, rec)
	caseService := services.NewCaseService(caseRepo, limiter, rec, services.CaseSettings{
		SubmissionCooldown: cfg.Cases.SubmissionCooldown,
		MaxPerEmailPerDay:  cfg.Cases.MaxPerEmailPerDay,
		MaxPerIPPerDay:     cfg.Cases.MaxPerIPPerDay,
	})

	// PDF: без TTF откатываемся на встроенный шрифт
	pdfGen := pdf.NewDocumentGenerator(cfg.Files.FontPath)

	// === Cleanup ===
	a.Cleanup = services.NewCleanupService(codeRepo, limiter, rec)
	a.Cron = cron.New()
	if _, err := a.Cleanup.Schedule(a.Cron, cfg.Cleanup.Schedule); err != nil {
		a.Close()
		return nil, fmt.Errorf("schedule cleanup %q: %w", cfg.Cleanup.Schedule, err)
	}

	// === Handlers ===
	verificationHandler := handlers.NewVerificationHandler(verificationService)
	voteHandler := handlers.NewVoteHandler(voteService)
	caseHandler := handlers.NewCaseHandler(caseService, pdfGen)
	healthHandler := handlers.NewHealthHandler(caseRepo, limiter, mailer.Kind())

	// === Gin ===
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		a.Close()
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	router.Use(rec.Middleware())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	// Swagger + Prometheus
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	routes.SetupRoutes(router, tokens, cfg.Admin.APIKey,
		verificationHandler,
		voteHandler,
		caseHandler,
		healthHandler,
	)
	a.Router = router
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			utils.Logger.WithError(err).Warn("[app] close failed")
		}
	}
	a.closers = nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	conn, err := db.Open(ctx, db.Options{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnectAttempts: cfg.ConnectAttempts,
	})
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return conn, nil
}

func buildLimiter(ctx context.Context, cfg *config.Config, a *App) (ratelimit.Limiter, error) {
	opts := ratelimit.Options{Local: &ratelimit.LocalOptions{Size: cfg.RateLimit.LocalSize}}
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		opts.Redis = &ratelimit.RedisOptions{Client: ratelimit.NewRedisAdapter(client), KeyPrefix: cfg.RateLimit.KeyPrefix}
	}
	return ratelimit.Factory(cfg.RateLimit.Backend, opts)
}

func buildMailer(cfg config.EmailConfig) (services.EmailService, error) {
	switch cfg.Provider {
	case "smtp":
		return services.NewSMTPEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail, cfg.FromName), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid provider requires an API key")
		}
		return services.NewSendGridEmailService(cfg.SendGridAPIKey, cfg.FromEmail, cfg.FromName), nil
	case "log", "":
		utils.Logger.Warn("[app] mail provider is 'log': codes are written to the log, not sent")
		return services.NewLogEmailService(), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}

// corsMiddleware оборачивает rs/cors для gin; preflight отвечаем сразу.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.AdminKeyHeader},
		ExposedHeaders: []string{"Retry-After"},
		MaxAge:         600,
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}
