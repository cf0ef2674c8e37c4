package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey   string
	DatabaseURL    string
	HTTPPort       string
	LogLevel       string
	JWTSecret      string
	UploadDir      string
	MaxUploadBytes int64
	// OpenEndpoints leaves /update and the upload endpoints unauthenticated,
	// matching the original deployment. Set to false to put them behind the
	// same token check as everything else.
	OpenEndpoints     bool
	AllowedExtensions map[string]bool
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:    getEnv("DATABASE_URL", "presentations.db"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		UploadDir:      getEnv("UPLOAD_DIR", "static/uploads"),
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 16*1024*1024),
		OpenEndpoints:  getEnvAsBool("OPEN_ENDPOINTS", true),
		AllowedExtensions: map[string]bool{
			"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "webp": true,
		},
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.ToLower(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}
