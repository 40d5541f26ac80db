package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightkind/clinic-platform/cmd/mainconfig"
	"github.com/brightkind/clinic-platform/internal/api/router"
	"github.com/brightkind/clinic-platform/internal/appointments"
	"github.com/brightkind/clinic-platform/internal/calendar"
	"github.com/brightkind/clinic-platform/internal/clients"
	"github.com/brightkind/clinic-platform/internal/compliance"
	appconfig "github.com/brightkind/clinic-platform/internal/config"
	"github.com/brightkind/clinic-platform/internal/documents"
	httpmiddleware "github.com/brightkind/clinic-platform/internal/http/middleware"
	"github.com/brightkind/clinic-platform/internal/kb"
	"github.com/brightkind/clinic-platform/internal/messaging"
	"github.com/brightkind/clinic-platform/internal/notify"
	"github.com/brightkind/clinic-platform/internal/observability/metrics"
	"github.com/brightkind/clinic-platform/internal/reports"
	"github.com/brightkind/clinic-platform/internal/sessions"
	"github.com/brightkind/clinic-platform/internal/tasks"
	"github.com/brightkind/clinic-platform/internal/users"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	syncMetrics := metrics.NewSyncMetrics(nil)

	// Repositories
	clientsRepo := clients.NewDynamoRepository(dynamoClient, cfg.ClientsTable)
	apptsRepo := appointments.NewDynamoRepository(dynamoClient, cfg.AppointmentsTable)
	sessionsRepo := sessions.NewDynamoRepository(dynamoClient, cfg.SessionsTable)
	tasksRepo := tasks.NewDynamoRepository(dynamoClient, cfg.TasksTable)
	reportsRepo := reports.NewDynamoRepository(dynamoClient, cfg.ProgressReportsTable)
	usersRepo := users.NewDynamoRepository(dynamoClient, cfg.UsersTable)
	conns := calendar.NewDynamoConnections(dynamoClient, cfg.CalendarConnsTable)
	docMappings := documents.NewDynamoMappings(dynamoClient, cfg.ClientDocsTable)
	messageStore := messaging.NewDynamoStore(dynamoClient, cfg.ThreadsTable, cfg.MessagesTable)
	articlesRepo := kb.NewCachedRepository(
		kb.NewDynamoRepository(dynamoClient, cfg.ArticlesTable),
		buildRedisClient(ctx, cfg, logger),
		logger,
	)

	audit := compliance.NewAuditService(
		compliance.NewDynamoEvents(dynamoClient, cfg.AuditTable), logger)

	// Calendar sync: per-user OAuth connections plus the optional shared
	// clinic calendar written through a service account.
	provider := calendar.NewGoogleProvider(calendar.GoogleConfig{
		ClientID:     cfg.GoogleOAuthClientID,
		ClientSecret: cfg.GoogleOAuthClientSecret,
	}, conns, logger)
	sharedEvents, err := calendar.NewServiceAccountEvents(ctx, calendar.ServiceAccountConfig{
		ClientEmail:  cfg.ServiceAccountEmail,
		PrivateKey:   cfg.ServiceAccountKey,
		PrivateKeyID: cfg.ServiceAccountKeyID,
		TokenURI:     cfg.ServiceAccountTokenURI,
		CalendarID:   cfg.GoogleCalendarID,
	})
	if err != nil {
		logger.Warn("shared clinic calendar disabled", "error", err)
	}
	calSvc := calendar.NewService(conns, provider, sharedEvents, logger, syncMetrics)

	docsAPI, err := documents.NewGoogleDocs(ctx,
		cfg.ServiceAccountEmail, cfg.ServiceAccountKey, cfg.ServiceAccountKeyID, cfg.ServiceAccountTokenURI)
	if err != nil {
		logger.Warn("client document generation disabled", "error", err)
	}
	var docsProvider documents.DocsAPI
	if docsAPI != nil {
		docsProvider = docsAPI
	}
	docsSvc := documents.NewService(docMappings, docsProvider, logger, syncMetrics)

	notifications := notify.NewDynamoStore(dynamoClient, cfg.NotificationsTable)
	notifySvc := notify.NewService(buildEmailSender(awsCfg, cfg, logger), usersRepo, notifications, logger)

	attachments := sessions.NewAttachmentStore(s3Client, cfg.AttachmentsBucket, logger)
	hub := messaging.NewHub(logger)

	policy := appointments.ConflictPolicy{
		SameLocationConflicts: cfg.ConflictSameLocation,
		MinDurationMinutes:    cfg.MinDurationMinutes,
		MaxDurationMinutes:    cfg.MaxDurationMinutes,
	}

	routerCfg := &router.Config{
		Logger:               logger,
		ClientsHandler:       clients.NewHandler(clientsRepo, docsSvc, audit, logger),
		SessionsHandler:      sessions.NewHandler(sessionsRepo, attachments, calSvc, docsSvc, audit, logger),
		AppointmentsHandler:  appointments.NewHandler(apptsRepo, calSvc, audit, notifySvc, policy, logger),
		TasksHandler:         tasks.NewHandler(tasksRepo, audit, notifySvc, logger),
		UsersHandler:         users.NewHandler(usersRepo, audit, logger),
		MessagingHandler:     messaging.NewHandler(messageStore, hub, notifySvc, logger),
		NotificationsHandler: notify.NewHandler(notifications, logger),
		KBHandler:            kb.NewHandler(articlesRepo, logger),
		ReportsHandler:       reports.NewHandler(reportsRepo, docsSvc, audit, logger),
		CalendarHandler: calendar.NewHandler(calSvc, conns,
			appointments.NewCalendarBackfill(apptsRepo), apptsRepo, logger),
		DocumentsHandler: documents.NewHandler(docsSvc, logger),

		Auth: httpmiddleware.AuthConfig{
			IssuerURL:  cfg.AuthIssuerURL,
			Audience:   cfg.AuthAudience,
			UserLookup: users.LookupFunc(usersRepo),
		},
		RateLimiter:        httpmiddleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Refresh OAuth tokens in the background so syncs rarely hit an expired
	// connection.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	worker := calendar.NewTokenRefreshWorker(conns, provider, logger, syncMetrics).
		WithInterval(cfg.TokenRefreshInterval).
		WithRefreshBefore(cfg.TokenRefreshBefore)
	go worker.Start(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildRedisClient returns a configured Redis client or nil when the cache is
// disabled or unreachable.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, article cache disabled", "error", err)
		return nil
	}
	return client
}

// buildEmailSender picks the configured email provider, or nil when email is
// disabled.
func buildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if s := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); s != nil {
			return s
		}
	case "ses":
		if s := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); s != nil {
			return s
		}
	}
	logger.Info("email notifications disabled", "provider", cfg.EmailProvider)
	return nil
}
