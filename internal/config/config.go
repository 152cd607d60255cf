package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds index database connection settings.
// Driver selects "postgres" (default) or "sqlite".
type DatabaseConfig struct {
	Driver             string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	SQLitePath         string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// StorageConfig selects where archived bytes and sidecars live.
// Driver is "fs" (default, rooted at ArchiveRoot) or "minio".
type StorageConfig struct {
	Driver      string
	ArchiveRoot string
}

// OCRConfig configures the external text-layer and OCR binaries.
type OCRConfig struct {
	Pdftotext      string
	Pdftoppm       string
	Tesseract      string
	Lang           string
	DPI            int
	MaxPages       int
	Timeout        time.Duration
	MinUsableChars int
}

// IngestConfig bounds the ingest pipeline.
type IngestConfig struct {
	MaxUploadBytes   int64
	RejectDuplicates bool
	Workers          int
	QueueSize        int
	JobTimeout       time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost    string
	Port       string
	LogLevel   string
	OfficeName string
	Database   DatabaseConfig
	Storage    StorageConfig
	MinIO      MinIOConfig
	OCR        OCRConfig
	Ingest     IngestConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:    getEnv("APP_HOST", "localhost:8080"),
		Port:       getEnv("PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		OfficeName: getEnv("OFFICE_NAME", "Kelurahan Pela Mampang"),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "postgres"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			SQLitePath:         getEnv("DB_SQLITE_PATH", "./data/arsip.db"),
		},
		Storage: StorageConfig{
			Driver:      getEnv("STORAGE_DRIVER", "fs"),
			ArchiveRoot: getEnv("ARCHIVE_ROOT", "./storage/arsip"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		OCR: OCRConfig{
			Pdftotext:      getEnv("PDFTOTEXT_CMD", "pdftotext"),
			Pdftoppm:       getEnv("PDFTOPPM_CMD", "pdftoppm"),
			Tesseract:      getEnv("TESSERACT_CMD", "tesseract"),
			Lang:           getEnv("TESSERACT_LANG", "ind"),
			DPI:            getEnvInt("OCR_DPI", 300),
			MaxPages:       getEnvInt("OCR_MAX_PAGES", 20),
			Timeout:        getEnvDuration("OCR_TIMEOUT", 2*time.Minute),
			MinUsableChars: getEnvInt("OCR_MIN_USABLE_CHARS", 50),
		},
		Ingest: IngestConfig{
			MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 20<<20),
			RejectDuplicates: getEnvBool("INGEST_REJECT_DUPLICATES", false),
			Workers:          getEnvInt("INGEST_WORKERS", 4),
			QueueSize:        getEnvInt("INGEST_QUEUE_SIZE", 64),
			JobTimeout:       getEnvDuration("INGEST_JOB_TIMEOUT", 5*time.Minute),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
