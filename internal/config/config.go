package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Record store
	StoreBackend             string
	DatabaseURL              string
	DynamoConversationsTable string
	DynamoPropertiesTable    string
	AirtableAPIKey           string
	AirtableBaseID           string
	AirtableBaseURL          string
	StoreTimeout             time.Duration
	StoreMaxAttempts         int
	StoreRetryBaseDelay      time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AI replies
	LLMProvider         string
	LLMFallbackProvider string
	BedrockModelID      string
	GeminiAPIKey        string
	GeminiModelID       string
	ReplyTimeout        time.Duration
	ReplyFallbackText   string
	ReplyHistoryLimit   int

	// Conversation matching
	MatchPolicy            string
	IntakeRequireStayDates bool

	// WhatsApp Business (Meta Cloud API)
	WhatsAppAccessToken       string
	WhatsAppPhoneNumberID     string
	WhatsAppVerifyToken       string
	WhatsAppAppSecret         string
	WhatsAppAPIBase           string
	WhatsAppPropertyMap       string
	WhatsAppDefaultPropertyID string
	WhatsAppAllowUndated      bool

	AdminJWTSecret     string
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// EmailProvider selects the host notification sender: sendgrid, ses or
	// none. Empty picks SendGrid when a key is set, then SES when a sender
	// address is set.
	EmailProvider string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	SESFromEmail string
	SESFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreBackend:             strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "memory"))),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		DynamoConversationsTable: getEnv("DYNAMO_CONVERSATIONS_TABLE", "guestpilot-conversations"),
		DynamoPropertiesTable:    getEnv("DYNAMO_PROPERTIES_TABLE", "guestpilot-properties"),
		AirtableAPIKey:           getEnv("AIRTABLE_API_KEY", ""),
		AirtableBaseID:           getEnv("AIRTABLE_BASE_ID", ""),
		AirtableBaseURL:          getEnv("AIRTABLE_BASE_URL", ""),
		StoreTimeout:             getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		StoreMaxAttempts:         getEnvAsInt("STORE_MAX_ATTEMPTS", 3),
		StoreRetryBaseDelay:      getEnvAsDuration("STORE_RETRY_BASE_DELAY", 100*time.Millisecond),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "none"))),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:       getEnv("GEMINI_MODEL_ID", ""),
		ReplyTimeout:        getEnvAsDuration("REPLY_TIMEOUT", 8*time.Second),
		ReplyFallbackText:   getEnv("REPLY_FALLBACK_TEXT", ""),
		ReplyHistoryLimit:   getEnvAsInt("REPLY_HISTORY_LIMIT", 10),

		MatchPolicy:            getEnv("MATCH_POLICY", "tiered"),
		IntakeRequireStayDates: getEnvAsBool("INTAKE_REQUIRE_STAY_DATES", true),

		WhatsAppAccessToken:       getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID:     getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:       getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:         getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIBase:           getEnv("WHATSAPP_API_BASE", ""),
		WhatsAppPropertyMap:       getEnv("WHATSAPP_PROPERTY_MAP", ""),
		WhatsAppDefaultPropertyID: getEnv("WHATSAPP_DEFAULT_PROPERTY_ID", ""),
		WhatsAppAllowUndated:      getEnvAsBool("WHATSAPP_ALLOW_UNDATED", true),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 5),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 20),

		EmailProvider: strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),

		// SendGrid Email Configuration
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "GuestPilot"),

		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "GuestPilot"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
