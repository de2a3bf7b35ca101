package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/kcbuddy/kcbuddy/config"
	"github.com/kcbuddy/kcbuddy/controllers"
	"github.com/kcbuddy/kcbuddy/models"
	"github.com/kcbuddy/kcbuddy/routes"
	"github.com/kcbuddy/kcbuddy/storage"
	"github.com/kcbuddy/kcbuddy/utils"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger early
	log, err := utils.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := config.OpenDatabase(cfg, log, models.All()...)
	if err != nil {
		return err
	}

	issuer, err := utils.NewTokenIssuer(utils.TokenOptions{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTLs: map[string]time.Duration{
			models.RoleParent: cfg.ParentTokenTTL,
			models.RoleKid:    cfg.KidTokenTTL,
		},
		DefaultTTL: cfg.KidTokenTTL,
	})
	if err != nil {
		return err
	}
	hasher, err := utils.NewCodeHasher(cfg.LoginCodeSecret, cfg.JWTSecret)
	if err != nil {
		return err
	}

	rdb := utils.NewRedis(cfg, log)
	limiters := routes.Limiters{
		LoginPerIP:    utils.NewLimiter(rdb, "login-ip", cfg.LoginLimitPerIP, cfg.LoginWindow),
		RegisterPerIP: utils.NewLimiter(rdb, "register-ip", cfg.RegisterLimitPerIP, cfg.RegisterWindow),
		UploadPerKid:  utils.NewLimiter(rdb, "upload-kid", cfg.UploadLimit, cfg.UploadWindow),
	}
	codeLimiter := utils.NewLimiter(rdb, "login-code", cfg.LoginLimitPerCode, cfg.LoginWindow)

	mailer, err := utils.NewMailer(ctx, cfg, log)
	if err != nil {
		return err
	}
	mail := utils.NewMailQueue(mailer, log.Named("mail"), cfg.MailQueueSize, cfg.MailMaxAttempts, cfg.MailRetryBackoff)
	mail.Start(ctx)

	store, err := storage.NewLocalStore(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		return err
	}
	var presigner storage.Presigner
	if cfg.S3Enabled() {
		p, err := storage.NewS3Presigner(ctx, cfg)
		if err != nil {
			return err
		}
		presigner = p
	} else {
		log.Info("s3 presigned uploads disabled: S3_REGION or S3_BUCKET not configured")
	}

	sweeper := utils.NewUploadSweeper(store.Dir(), cfg.UploadRetention, cfg.UploadSweepInterval, log.Named("sweeper"))
	sweeper.Start(ctx)

	accessLog, err := utils.NewRollingFileLogger(cfg.GinPath, cfg)
	if err != nil {
		log.Warn("access log file unavailable, using application logger", zap.Error(err))
		accessLog = log
	}

	r := routes.SetupRouter(routes.Options{
		GinMode:        cfg.GinMode,
		AllowedOrigins: cfg.AllowedOrigins,
		UploadDir:      store.Dir(),
		AccessLog:      accessLog,
		Log:            log,
		Issuer:         issuer,
		Limiters:       limiters,
	}, routes.Controllers{
		Auth:        controllers.NewAuthController(db, issuer, hasher, codeLimiter, mail, cfg.LoginCodeBytes, log),
		Kids:        controllers.NewKidController(db, hasher, cfg.LoginCodeBytes, log),
		Chores:      controllers.NewChoreController(db, log),
		Submissions: controllers.NewSubmissionController(db, cfg.S3PublicBaseURL, log),
		Goals:       controllers.NewGoalController(db, log),
		Storage:     controllers.NewStorageController(store, presigner, cfg.UploadMaxBytes, log),
	})

	log.Info("Starting server (graceful)", zap.String("port", cfg.AppPort))
	return utils.GraceServer(":"+cfg.AppPort, r, log,
		func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
		mail.Stop,
		func(ctx context.Context) error {
			if rdb != nil {
				return rdb.Close()
			}
			return nil
		},
		func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	)
}
