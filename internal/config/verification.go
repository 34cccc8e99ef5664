package config

import (
	"os"
	"strconv"
	"time"
)

type VerificationConfig struct {
	CodeLength           int
	CodeTTL              time.Duration
	MaxIssuesPerIdentity int
	RateLimitWindow      time.Duration
	StoreTimeout         time.Duration
	SendTimeout          time.Duration
}

func LoadVerificationConfig() *VerificationConfig {
	return &VerificationConfig{
		CodeLength:           getEnvAsInt("VERIFICATION_CODE_LENGTH", 6),
		CodeTTL:              getEnvAsDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
		MaxIssuesPerIdentity: getEnvAsInt("VERIFICATION_MAX_ISSUES", 5),
		RateLimitWindow:      getEnvAsDuration("VERIFICATION_RATE_LIMIT_WINDOW", 1*time.Hour),
		StoreTimeout:         getEnvAsDuration("VERIFICATION_STORE_TIMEOUT", 5*time.Second),
		SendTimeout:          getEnvAsDuration("VERIFICATION_SEND_TIMEOUT", 10*time.Second),
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
