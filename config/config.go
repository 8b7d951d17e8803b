// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port        string
	DatabaseURL string

	// MasterKey はbase64エンコードされたマスターキー。
	MasterKey string
	// MasterKeyCiphertext はCloud KMSで暗号化されたマスターキー（base64）。MasterKey が空のときに使う。
	MasterKeyCiphertext string
	KMSKeyName          string

	GoogleCloudProject string
	LogLevel           string

	OtelEnabled      bool
	OtelEndpoint     string
	OtelInsecure     bool
	OtelServiceName  string
	OtelSamplingRate float64

	MetricsEnabled bool
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MasterKey:           os.Getenv("MASTER_KEY"),
		MasterKeyCiphertext: os.Getenv("MASTER_KEY_CIPHERTEXT"),
		KMSKeyName:          os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject:  os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		OtelEnabled:         getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:        getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelInsecure:        getEnvBool("OTEL_INSECURE", false),
		OtelServiceName:     getEnv("OTEL_SERVICE_NAME", "environment-key-service"),
		OtelSamplingRate:    getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 || f > 1 {
		return defaultVal
	}
	return f
}
