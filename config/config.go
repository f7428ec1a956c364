package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally a .env file) with simple defaults.
type Config struct {
	ServerAddr string // HTTP listen address, e.g. ":8080"

	FFmpegPath    string // Path to the ffmpeg binary; must be in PATH or absolute
	FFmpegThreads int    // -threads value passed to ffmpeg; 0 = auto

	// Transcoding limits and HLS layout
	MaxConcurrentTranscodes int    // Upper bound on simultaneous encoder subprocesses
	HLSSegmentTime          string // Target segment duration in seconds, e.g. "10"
	HLSUseFMP4              bool   // Use fMP4 segments (init.m4a + .m4s) instead of MPEG-TS

	// Storage layout. Originals, HLS trees and the single-file transcode
	// cache all live under StoragePath.
	StoragePath string
	OriginalDir string // StoragePath/originals — uploaded source files
	HLSDir      string // StoragePath/hls — per-track segmented output
	CacheDir    string // StoragePath/cache — on-demand single-file artifacts

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO 对象存储配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	storagePath := getEnv("STORAGE_PATH", "storage")

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		FFmpegThreads: getEnvInt("FFMPEG_THREADS", 0), // 0 = auto / use all

		MaxConcurrentTranscodes: getEnvInt("MAX_CONCURRENT_TRANSCODES", 4),
		HLSSegmentTime:          getEnv("HLS_SEGMENT_TIME", "10"),
		HLSUseFMP4:              getEnvBool("HLS_USE_FMP4", true),

		StoragePath: storagePath,
		OriginalDir: filepath.Join(storagePath, "originals"),
		HLSDir:      filepath.Join(storagePath, "hls"),
		CacheDir:    filepath.Join(storagePath, "cache"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "sonara"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "sonara"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
