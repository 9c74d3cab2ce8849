// Package config загружает конфигурацию процессов из переменных окружения и файла .env.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Server конфигурация API-сервера
type Server struct {
	ServerPort string
	LogLevel   slog.Level

	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	HistoryMaxPerDevice int

	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	IngestWorkers     int
	IngestQueueSize   int
	TempThreshold     float64
	HumidityThreshold float64

	ModelSource string // file | s3
	ModelDir    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool

	AMQPURL      string
	AMQPExchange string

	FeatureLocation *time.Location

	APIRateLimit float64
	APIRateBurst int
}

// Simulator конфигурация симулятора
type Simulator struct {
	LogLevel     slog.Level
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
	Devices      []string
	Interval     time.Duration
}

// LoadServer загружает конфигурацию сервера
func LoadServer() (Server, error) {
	loadDotEnv()

	loc, err := loadLocation(getEnv("FEATURE_TIMEZONE", "Local"))
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),

		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvAsInt("REDIS_DB", 0),
		HistoryMaxPerDevice: getEnvAsInt("HISTORY_MAX_PER_DEVICE", 10000),

		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "iot/sensors/data"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "iot-forecast-server"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		IngestWorkers:     getEnvAsInt("INGEST_WORKERS", 4),
		IngestQueueSize:   getEnvAsInt("INGEST_QUEUE_SIZE", 1000),
		TempThreshold:     getEnvAsFloat("TEMP_THRESHOLD", 30),
		HumidityThreshold: getEnvAsFloat("HUMIDITY_THRESHOLD", 80),

		ModelSource: strings.ToLower(getEnv("MODEL_SOURCE", "file")),
		ModelDir:    getEnv("MODEL_DIR", "models"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Prefix:    getEnv("S3_PREFIX", ""),
		S3UseSSL:    getEnvAsBool("S3_USE_SSL", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "iot.alerts"),

		FeatureLocation: loc,

		APIRateLimit: getEnvAsFloat("API_RATE_LIMIT", 50),
		APIRateBurst: getEnvAsInt("API_RATE_BURST", 100),
	}

	if cfg.ModelSource != "file" && cfg.ModelSource != "s3" {
		return Server{}, fmt.Errorf("MODEL_SOURCE must be file or s3, got %q", cfg.ModelSource)
	}
	return cfg, nil
}

// LoadSimulator загружает конфигурацию симулятора
func LoadSimulator() Simulator {
	loadDotEnv()

	return Simulator{
		LogLevel:     getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "iot/sensors/data"),
		MQTTClientID: getEnv("SIM_CLIENT_ID", "iot-simulator"),
		Devices:      getEnvAsList("SIM_DEVICES", []string{"sensor_01", "sensor_02", "sensor_03", "sensor_04", "sensor_05"}),
		Interval:     getEnvAsDuration("SIM_INTERVAL", 5*time.Second),
	}
}

// loadDotEnv подгружает .env, если он есть; уже заданные переменные не перезаписываются
func loadDotEnv() {
	_ = godotenv.Load()
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("FEATURE_TIMEZONE: %w", err)
	}
	return loc, nil
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value float64
	if _, err := fmt.Sscanf(valueStr, "%f", &value); err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

// getEnvAsList список через запятую
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(valueStr)); err != nil {
		return defaultValue
	}
	return level
}
