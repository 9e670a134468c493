// Package config centralizes how TextDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by the API, the worker and
// the CLI. Each binary reads only the fields it needs.
type Config struct {
	Address       string
	APIGatewayURL string

	InputBucket     string
	ProcessedBucket string
	TopicARN        string
	AlertTopicARN   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
	AWSRegion   string
	// AWSEndpoint overrides the AWS service endpoints (LocalStack and friends).
	AWSEndpoint string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	Detector        string
	PollInterval    time.Duration
	MaxPollAttempts int
	SignedURLTTL    time.Duration
	BitlySecretName string
	BitlyAPIURL     string
	DedupTTL        time.Duration
	Workers         int
	EventSource     string

	LogLevel  string
	LogFormat string
}

const (
	defaultAddress      = ":8080"
	defaultGatewayURL   = "http://localhost:8080/presign"
	defaultBucket       = "textdrop"
	defaultS3Endpoint   = "localhost:9000"
	defaultRegion       = "us-east-1"
	defaultRedisAddr    = "localhost:6379"
	defaultDetector     = DetectorTextract
	defaultPollInterval = 5 * time.Second
	defaultMaxPolls     = 720
	defaultSignedTTL    = time.Hour
	defaultBitlySecret  = "bitly_access_token"
	defaultBitlyURL     = "https://api-ssl.bitly.com/v4/shorten"
	defaultDedupTTL     = 24 * time.Hour
	defaultWorkerCount  = 4
	defaultEventSource  = EventSourceWebhook
	defaultLogLevel     = "info"
	defaultLogFormat    = "json"
)

// Detector and event source names accepted in the environment.
const (
	DetectorTextract = "textract"
	DetectorLocal    = "local"

	EventSourceWebhook = "webhook"
	EventSourceListen  = "listen"
)

// Load reads configuration from environment variables falling back to
// defaults. A .env file in the working directory is applied first when it
// exists; variables already set in the process win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Address:       readEnv("ADDRESS", defaultAddress),
		APIGatewayURL: readEnv("API_GATEWAY_URL", defaultGatewayURL),

		InputBucket:     readEnv("INPUT_BUCKET_NAME", defaultBucket),
		ProcessedBucket: readEnv("PROCESSED_BUCKET_NAME", ""),
		TopicARN:        readEnv("SNS_TOPIC_ARN", ""),
		AlertTopicARN:   readEnv("ALERT_TOPIC_ARN", ""),

		S3Endpoint:  readEnv("S3_ENDPOINT", defaultS3Endpoint),
		S3AccessKey: readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: readEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    parseBool("S3_USE_SSL", false),
		S3Region:    readEnv("S3_REGION", defaultRegion),
		AWSRegion:   readEnv("AWS_REGION", defaultRegion),
		AWSEndpoint: readEnv("AWS_ENDPOINT_URL", ""),

		RedisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       parseInt("REDIS_DB", 0),
		DatabaseURL:   readEnv("DATABASE_URL", ""),

		Detector:        strings.ToLower(readEnv("DETECTOR", defaultDetector)),
		PollInterval:    parseDuration("POLL_INTERVAL", defaultPollInterval),
		MaxPollAttempts: parseInt("MAX_POLL_ATTEMPTS", defaultMaxPolls),
		SignedURLTTL:    parseDuration("SIGNED_URL_TTL", defaultSignedTTL),
		BitlySecretName: readEnv("BITLY_SECRET_NAME", defaultBitlySecret),
		BitlyAPIURL:     readEnv("BITLY_API_URL", defaultBitlyURL),
		DedupTTL:        parseDuration("DEDUP_TTL", defaultDedupTTL),
		Workers:         parseInt("WORKERS", defaultWorkerCount),
		EventSource:     strings.ToLower(readEnv("EVENT_SOURCE", defaultEventSource)),

		LogLevel:  readEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat: readEnv("LOG_FORMAT", defaultLogFormat),
	}
	if cfg.ProcessedBucket == "" {
		// Raw and processed namespaces share one bucket unless told otherwise.
		cfg.ProcessedBucket = cfg.InputBucket
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPolls
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = defaultDedupTTL
	}
	if cfg.Detector != DetectorLocal {
		cfg.Detector = DetectorTextract
	}
	if cfg.EventSource != EventSourceListen {
		cfg.EventSource = EventSourceWebhook
	}
	return cfg, nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5s" or "1h".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
