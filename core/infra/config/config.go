package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRedisURL        = "redis://localhost:6379"
	defaultHTTPAddr        = ":5000"
	defaultMetricsAddr     = ":9090"
	defaultSourceAPKPath   = "uploads/release.apk"
	defaultArtifactDir     = "user_apks"
	defaultToolsDir        = "tools"
	defaultToolsConfig     = "config/tools.yaml"
	defaultArtifactTTL     = time.Hour
	defaultSweepInterval   = 10 * time.Minute
	defaultMaxParallelJobs = 4

	envRedisURL          = "REDIS_URL"
	envNATSURL           = "NATS_URL"
	envHTTPAddr          = "HTTP_ADDR"
	envMetricsAddr       = "METRICS_ADDR"
	envSourceAPKPath     = "SOURCE_APK_PATH"
	envArtifactDir       = "APK_DIR"
	envWorkDir           = "WORK_DIR"
	envToolsDir          = "TOOLS_DIR"
	envToolsConfigPath   = "TOOLS_CONFIG_PATH"
	envMirrorURL         = "MIRROR_URL"
	envMirrorToken       = "MIRROR_TOKEN"
	envAllowedOrigin     = "FRONTEND_URL"
	envPayloadSchemaPath = "PAYLOAD_SCHEMA_PATH"
	envArtifactTTL       = "APK_TTL"
	envSweepInterval     = "APK_SWEEP_INTERVAL"
	envMaxParallelJobs   = "MAX_PARALLEL_JOBS"
)

// Config holds runtime configuration for the backend.
type Config struct {
	RedisURL          string
	NatsURL           string // empty disables the event publisher
	HTTPAddr          string
	MetricsAddr       string
	SourceAPKPath     string
	ArtifactDir       string
	WorkDir           string
	ToolsDir          string
	ToolsConfigPath   string
	MirrorBaseURL     string // empty disables the remote mirror
	MirrorToken       string
	AllowedOrigin     string
	PayloadSchemaPath string
	ArtifactTTL       time.Duration
	SweepInterval     time.Duration
	MaxParallelJobs   int
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := &Config{
		RedisURL:          getenv(envRedisURL, defaultRedisURL),
		NatsURL:           strings.TrimSpace(os.Getenv(envNATSURL)),
		HTTPAddr:          getenv(envHTTPAddr, defaultHTTPAddr),
		MetricsAddr:       getenv(envMetricsAddr, defaultMetricsAddr),
		SourceAPKPath:     getenv(envSourceAPKPath, defaultSourceAPKPath),
		ArtifactDir:       getenv(envArtifactDir, defaultArtifactDir),
		WorkDir:           getenv(envWorkDir, os.TempDir()),
		ToolsDir:          getenv(envToolsDir, defaultToolsDir),
		ToolsConfigPath:   getenv(envToolsConfigPath, defaultToolsConfig),
		MirrorBaseURL:     strings.TrimSpace(os.Getenv(envMirrorURL)),
		MirrorToken:       strings.TrimSpace(os.Getenv(envMirrorToken)),
		AllowedOrigin:     getenv(envAllowedOrigin, "*"),
		PayloadSchemaPath: strings.TrimSpace(os.Getenv(envPayloadSchemaPath)),
		ArtifactTTL:       parseDurationEnv(envArtifactTTL, defaultArtifactTTL),
		SweepInterval:     parseDurationEnv(envSweepInterval, defaultSweepInterval),
		MaxParallelJobs:   parseIntEnv(envMaxParallelJobs, defaultMaxParallelJobs),
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func parseIntEnv(key string, fallback int) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
