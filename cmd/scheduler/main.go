package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/damoang/angple-workflow/internal/config"
	"github.com/damoang/angple-workflow/internal/migration"
	"github.com/damoang/angple-workflow/internal/service"
	pkgcache "github.com/damoang/angple-workflow/pkg/cache"
	pkglogger "github.com/damoang/angple-workflow/pkg/logger"
	pkgredis "github.com/damoang/angple-workflow/pkg/redis"
	pkgstorage "github.com/damoang/angple-workflow/pkg/storage"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		pkglogger.Info("Migration warning: %v", err)
	}

	// Redis is optional: without it the trigger loop runs unlocked, which is
	// fine for a single worker, and caches fall back to the database.
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Info("Warning: Failed to connect to Redis: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}

	var cacheService pkgcache.Service
	var locker service.Locker
	if redisClient != nil {
		cacheService = pkgcache.NewService(redisClient)
		locker = service.NewRedisLocker(redisClient)
		pkglogger.Info("Cache service initialized")
	}

	var store service.ObjectStore
	if cfg.Storage.Enabled && cfg.Storage.Bucket != "" {
		s3Client, s3Err := pkgstorage.NewS3Client(pkgstorage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			CDNURL:          cfg.Storage.CDNURL,
			BasePath:        cfg.Storage.BasePath,
			ForcePathStyle:  cfg.Storage.ForcePathStyle,
		})
		if s3Err != nil {
			pkglogger.Info("Warning: storage init failed: %v (continuing without exports)", s3Err)
		} else {
			store = s3Client
			pkglogger.Info("Object storage initialized (bucket: %s)", cfg.Storage.Bucket)
		}
	}

	engine := service.NewEngine(db, service.EngineOptions{
		Cache:     cacheService,
		Locker:    locker,
		Notifier:  service.NewLogNotifier(*pkglogger.GetLogger()),
		Store:     store,
		LockTTL:   cfg.Scheduler.LockTTL.Std(),
		BatchSize: cfg.Scheduler.BatchSize,
	})

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		pkglogger.Info("Metrics listening on %s", cfg.Scheduler.MetricsAddr)
		if err := http.ListenAndServe(cfg.Scheduler.MetricsAddr, nil); err != nil {
			pkglogger.Error("Metrics server stopped: %v", err)
		}
	}()

	runTriggerLoop(engine.Schedules, cfg.Scheduler.Interval.Std())
}

// runTriggerLoop sweeps due schedules on a fixed interval until SIGINT/SIGTERM.
func runTriggerLoop(schedules service.ScheduleService, interval time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pkglogger.Info("Trigger loop started (interval: %s)", interval)
	for {
		select {
		case <-ctx.Done():
			pkglogger.Info("Shutting down trigger loop")
			return
		case now := <-ticker.C:
			report, err := schedules.ProcessDue(ctx, now)
			if err != nil {
				pkglogger.Error("Trigger sweep failed: %v", err)
				continue
			}
			if len(report.Results) > 0 {
				pkglogger.Info("Trigger sweep: fired=%d failed=%d skipped=%d",
					report.Fired, report.Failed, report.Skipped)
			}
		}
	}
}

// initDB MySQL connection with UTC session time
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["time_zone"] = "'+00:00'"

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
