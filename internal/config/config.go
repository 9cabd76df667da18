package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	// 容器镜像可能缺少系统时区库
	_ "time/tzdata"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	AI         AIConfig
	Tutor      TutorConfig
	Vocabulary VocabularyConfig
	Speech     SpeechConfig
	Archive    ArchiveConfig
	Metrics    MetricsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	tutor, err := loadTutorConfig()
	if err != nil {
		return nil, err
	}

	vocabulary, err := loadVocabularyConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	archive, err := loadArchiveConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Log:        logCfg,
		AI:         ai,
		Tutor:      tutor,
		Vocabulary: vocabulary,
		Speech:     speech,
		Archive:    archive,
		Metrics:    MetricsConfig{Namespace: getEnvOrDefault("METRICS_NAMESPACE", "fluent_tutor")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console"))
	if format != "console" && format != "json" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q: want console or json", format)
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

// TutorConfig 描述对话控制器与会话生命周期。
type TutorConfig struct {
	HistoryWindow      int
	Instruction        string
	SeedSystemTurn     bool
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration
}

func loadTutorConfig() (TutorConfig, error) {
	window := 10
	if override, err := parseOptionalIntEnv("TUTOR_HISTORY_WINDOW"); err != nil {
		return TutorConfig{}, err
	} else if override != nil {
		if *override < 1 {
			window = 1
		} else {
			window = *override
		}
	}

	seed, err := parseBoolEnv("TUTOR_SEED_SYSTEM_TURN", true)
	if err != nil {
		return TutorConfig{}, err
	}

	idle, err := parseDurationEnv("TUTOR_SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return TutorConfig{}, err
	}

	sweep, err := parseDurationEnv("TUTOR_SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return TutorConfig{}, err
	}

	return TutorConfig{
		HistoryWindow:      window,
		Instruction:        strings.TrimSpace(os.Getenv("TUTOR_INSTRUCTION")),
		SeedSystemTurn:     seed,
		SessionIdleTimeout: idle,
		SweepInterval:      sweep,
	}, nil
}

// VocabularyConfig 描述每日词汇与图卡。
type VocabularyConfig struct {
	DailyCount  int
	VisualCount int
	CatalogPath string
	Location    *time.Location
}

func loadVocabularyConfig() (VocabularyConfig, error) {
	daily, err := parseIntEnv("VOCAB_DAILY_COUNT", 10)
	if err != nil {
		return VocabularyConfig{}, err
	}
	visual, err := parseIntEnv("VOCAB_VISUAL_COUNT", 8)
	if err != nil {
		return VocabularyConfig{}, err
	}

	tz := getEnvOrDefault("VOCAB_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return VocabularyConfig{}, fmt.Errorf("invalid VOCAB_TIMEZONE value %q: %w", tz, err)
	}

	return VocabularyConfig{
		DailyCount:  daily,
		VisualCount: visual,
		CatalogPath: strings.TrimSpace(os.Getenv("VOCAB_CATALOG_PATH")),
		Location:    loc,
	}, nil
}

// ArchiveConfig 描述可选的对话归档存储。
type ArchiveConfig struct {
	Driver string
	DSN    string
}

func loadArchiveConfig() (ArchiveConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("ARCHIVE_DRIVER")))
	dsn := strings.TrimSpace(os.Getenv("ARCHIVE_DSN"))

	switch driver {
	case "", "memory":
	case "sqlite", "postgres":
		if dsn == "" {
			return ArchiveConfig{}, fmt.Errorf("ARCHIVE_DSN is required for ARCHIVE_DRIVER=%s", driver)
		}
	default:
		return ArchiveConfig{}, fmt.Errorf("invalid ARCHIVE_DRIVER value %q", driver)
	}

	return ArchiveConfig{Driver: driver, DSN: dsn}, nil
}

// MetricsConfig 描述 Prometheus 指标。
type MetricsConfig struct {
	Namespace string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val < 0 {
		return 0, fmt.Errorf("invalid %s value %d: must not be negative", key, *val)
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
