// Package main - intake service entry point
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/riskfortress/intake"
	"github.com/riskfortress/intake/api"
	"github.com/riskfortress/intake/config"
	"github.com/riskfortress/intake/db"
	"github.com/riskfortress/intake/models"
	"github.com/riskfortress/intake/monitoring"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"
)

// maintenanceInterval how often the expiry check and retention sweep run
const maintenanceInterval = time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Encrypted client intake submission service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
}

// runMaintenance periodic key expiry check and retention sweep
func runMaintenance(ctx context.Context, service *intake.Service) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rotated, err := service.Keys.CheckExpiry(ctx); err != nil {
				log.WithError(err).Error("Key expiry check failed")
			} else if rotated {
				monitoring.KeyRotations.
					WithLabelValues(string(models.RotationReasonExpiry)).Inc()
			}

			if purged, err := service.Sink.PurgeExpired(ctx); err != nil {
				log.WithError(err).Error("Retention sweep failed")
			} else if purged > 0 {
				monitoring.SubmissionsPurged.Add(float64(purged))
			}
		}
	}
}

func runServer(ctx context.Context) error {
	// .env is optional; existing environment variables win
	_ = godotenv.Load()
	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if cfg.EncryptionSecret == "" {
		log.Fatal("ENCRYPTION_SECRET is not set")
	}

	var redisClient *redis.Client
	if cfg.RedisAddress != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	}

	// Prepare the SQLite schema before the service provisions its first key
	migrateClient, err := db.NewConnection(db.GetSqliteDialector(cfg.DBFile), logger.Error)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	if err := migrateClient.RunSQLInTransaction(ctx, db.DefineTables); err != nil {
		log.WithError(err).Fatal("Failed to prepare database tables")
	}

	service, err := intake.NewService(ctx, intake.ServiceParams{
		DBDialector:         db.GetSqliteDialector(cfg.DBFile),
		DBLogLevel:          logger.Error,
		EncryptionSecret:    cfg.EncryptionSecret,
		KeyLifetime:         cfg.KeyLifetime,
		SubmissionRetention: cfg.SubmissionRetention,
		RedisClient:         redisClient,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to assemble intake service")
	}

	monitoring.InitMetrics()

	router, err := api.NewRouter(api.RouterParams{
		Orchestrator:  service.Pipeline,
		Keys:          service.Keys,
		AllowedOrigin: cfg.AllowedOrigin,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to build HTTP router")
	}

	maintenanceCtx, cancelMaintenance := context.WithCancel(ctx)
	defer cancelMaintenance()
	go runMaintenance(maintenanceCtx, service)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: time.Second * 10,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		log.Info("Shutting down server")
		cancelMaintenance()
		shutdownCtx, cancel := context.WithTimeout(ctx, time.Second*30)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	log.WithField("address", cfg.ListenAddress).Info("Starting intake service")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	log.Info("Server stopped")
	return nil
}
