package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr      string
	KernelURL       string
	KernelTimeout   int
	WorkDir         string
	Tolerance       float64
	PresignExpiry   int
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	S3Region        string
	AWSS3AccessKey  string
	AWSS3SecretKey  string
	S3Endpoint      string
	S3UsePathStyle  bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

func Load() *Config {
	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":5000"),
		KernelURL:       getEnv("CAD_KERNEL_URL", "http://cadkernel:9090"),
		KernelTimeout:   getEnvInt("CAD_KERNEL_TIMEOUT", 300),
		WorkDir:         getEnv("WORK_DIR", "/tmp/conversions"),
		Tolerance:       getEnvFloat("TESSELLATION_TOLERANCE", 0.1),
		PresignExpiry:   getEnvInt("PRESIGN_EXPIRY", 3600),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DB", ""),
		MongoCollection: getEnv("MONGO_COLLECTION", "file_conversions"),
		// Prefer unified S3_* vars, fall back to legacy AWS_* vars for compatibility
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_REGION", ""),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_LINK_CACHE_DB", 0),
	}
}

// Validate reports every missing required setting at once so a bad
// deployment fails at startup instead of on the first request.
func (c *Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.MongoDatabase == "" {
		missing = append(missing, "MONGO_DB")
	}
	if c.MongoCollection == "" {
		missing = append(missing, "MONGO_COLLECTION")
	}
	if c.S3Region == "" {
		missing = append(missing, "S3_REGION/AWS_REGION")
	}
	if c.AWSS3AccessKey == "" {
		missing = append(missing, "S3_KEY/AWS_ACCESS_KEY_ID")
	}
	if c.AWSS3SecretKey == "" {
		missing = append(missing, "S3_SECRET/AWS_SECRET_ACCESS_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("TESSELLATION_TOLERANCE must be positive, got %v", c.Tolerance)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
