package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Identity provider (JWT validation)
	AuthIssuerURL string
	AuthAudience  string

	// DynamoDB tables
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpointOverride  string
	ClientsTable         string
	AppointmentsTable    string
	SessionsTable        string
	TasksTable           string
	ProgressReportsTable string
	UsersTable           string
	CalendarConnsTable   string
	ClientDocsTable      string
	NotificationsTable   string
	ThreadsTable         string
	MessagesTable        string
	ArticlesTable        string
	AuditTable           string

	// S3 attachment storage
	AttachmentsBucket string

	// Redis (knowledge-base cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	// Google Calendar / Docs
	GoogleOAuthClientID     string
	GoogleOAuthClientSecret string
	GoogleCalendarID        string
	ServiceAccountEmail     string
	ServiceAccountKey       string
	ServiceAccountKeyID     string
	ServiceAccountProjectID string
	ServiceAccountTokenURI  string
	TokenRefreshInterval    time.Duration
	TokenRefreshBefore      time.Duration

	// Scheduling policy
	ConflictSameLocation bool
	MinDurationMinutes   int
	MaxDurationMinutes   int

	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from the environment. A .env file is honored when
// present so local development matches deployed behavior.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		AuthIssuerURL: getEnv("AUTH_ISSUER_URL", ""),
		AuthAudience:  getEnv("AUTH_AUDIENCE", ""),

		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:  getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ClientsTable:         getEnv("CLIENTS_TABLE", "clients"),
		AppointmentsTable:    getEnv("APPOINTMENTS_TABLE", "appointments"),
		SessionsTable:        getEnv("SESSIONS_TABLE", "sessions"),
		TasksTable:           getEnv("TASKS_TABLE", "tasks"),
		ProgressReportsTable: getEnv("PROGRESS_REPORTS_TABLE", "progressReports"),
		UsersTable:           getEnv("USERS_TABLE", "users"),
		CalendarConnsTable:   getEnv("CALENDAR_CONNECTIONS_TABLE", "userCalendarConnections"),
		ClientDocsTable:      getEnv("CLIENT_DOCUMENTS_TABLE", "clientDocuments"),
		NotificationsTable:   getEnv("NOTIFICATIONS_TABLE", "notifications"),
		ThreadsTable:         getEnv("THREADS_TABLE", "messageThreads"),
		MessagesTable:        getEnv("MESSAGES_TABLE", "messages"),
		ArticlesTable:        getEnv("ARTICLES_TABLE", "kbArticles"),
		AuditTable:           getEnv("AUDIT_TABLE", "auditEvents"),

		AttachmentsBucket: getEnv("ATTACHMENTS_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "BrightKind Clinic"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "BrightKind Clinic"),

		GoogleOAuthClientID:     getEnv("GOOGLE_OAUTH_CLIENT_ID", ""),
		GoogleOAuthClientSecret: getEnv("GOOGLE_OAUTH_CLIENT_SECRET", ""),
		GoogleCalendarID:        getEnv("GOOGLE_CALENDAR_ID", ""),
		ServiceAccountEmail:     getEnv("GOOGLE_SA_CLIENT_EMAIL", ""),
		ServiceAccountKey:       restoreNewlines(getEnv("GOOGLE_SA_PRIVATE_KEY", "")),
		ServiceAccountKeyID:     getEnv("GOOGLE_SA_PRIVATE_KEY_ID", ""),
		ServiceAccountProjectID: getEnv("GOOGLE_SA_PROJECT_ID", ""),
		ServiceAccountTokenURI:  getEnv("GOOGLE_SA_TOKEN_URI", "https://oauth2.googleapis.com/token"),
		TokenRefreshInterval:    getEnvAsDuration("TOKEN_REFRESH_INTERVAL", 30*time.Minute),
		TokenRefreshBefore:      getEnvAsDuration("TOKEN_REFRESH_BEFORE", 10*time.Minute),

		ConflictSameLocation: getEnvAsBool("CONFLICT_LOCATION_POLICY", false),
		MinDurationMinutes:   getEnvAsInt("MIN_DURATION_MINUTES", 15),
		MaxDurationMinutes:   getEnvAsInt("MAX_DURATION_MINUTES", 480),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// restoreNewlines handles private keys pasted into env vars with literal \n.
func restoreNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
