package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables DynamoTables

	// Dead-lettered queue items archive their final payload here. Empty
	// disables archiving.
	S3DeadLetterBucket string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// SNS platform application ARNs for the native push relay, keyed by
	// platform ("ios", "android"). Platforms without an ARN fall back to
	// the universal relay.
	SNSPlatformARNs map[string]string
	// Universal cross-platform push relay endpoint.
	PushRelayURL string

	// Notification generator.
	DedupWindow         time.Duration
	NotifyLosingBidders bool

	// Dispatcher worker.
	DispatchPollInterval time.Duration
	DispatchWorkers      int
	DispatchLease        time.Duration
	DispatchSendTimeout  time.Duration
	DispatchMaxAttempts  int
	DispatchBackoffBase  time.Duration
	DispatchBackoffCap   time.Duration

	// Offers in pending/countered older than this are expired by the sweeper.
	OfferTTL time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Offers            string
	Listings          string
	Notifications     string
	NotificationDedup string
	PushTokens        string
	QueueItems        string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			Offers:            getEnv("DYNAMO_TABLE_OFFERS", "offers"),
			Listings:          getEnv("DYNAMO_TABLE_LISTINGS", "listings"),
			Notifications:     getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			NotificationDedup: getEnv("DYNAMO_TABLE_NOTIFICATION_DEDUP", "notification_dedup"),
			PushTokens:        getEnv("DYNAMO_TABLE_PUSH_TOKENS", "push_tokens"),
			QueueItems:        getEnv("DYNAMO_TABLE_QUEUE_ITEMS", "queue_items"),
		},

		S3DeadLetterBucket: getEnv("S3_DEAD_LETTER_BUCKET", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),

		SNSPlatformARNs: platformARNs(),
		PushRelayURL:    getEnv("PUSH_RELAY_URL", "https://exp.host/--/api/v2/push/send"),

		DedupWindow:         getEnvDuration("NOTIFICATION_DEDUP_WINDOW", 5*time.Minute),
		NotifyLosingBidders: getEnvBool("NOTIFY_LOSING_BIDDERS", false),

		DispatchPollInterval: getEnvDuration("DISPATCH_POLL_INTERVAL", 5*time.Second),
		DispatchWorkers:      getEnvInt("DISPATCH_WORKERS", 4),
		DispatchLease:        getEnvDuration("DISPATCH_LEASE", 2*time.Minute),
		DispatchSendTimeout:  getEnvDuration("DISPATCH_SEND_TIMEOUT", 10*time.Second),
		DispatchMaxAttempts:  getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
		DispatchBackoffBase:  getEnvDuration("DISPATCH_BACKOFF_BASE", 30*time.Second),
		DispatchBackoffCap:   getEnvDuration("DISPATCH_BACKOFF_CAP", 30*time.Minute),

		OfferTTL: getEnvDuration("OFFER_TTL", 7*24*time.Hour),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func platformARNs() map[string]string {
	arns := map[string]string{}
	if v := os.Getenv("SNS_PLATFORM_ARN_IOS"); v != "" {
		arns["ios"] = v
	}
	if v := os.Getenv("SNS_PLATFORM_ARN_ANDROID"); v != "" {
		arns["android"] = v
	}
	return arns
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
