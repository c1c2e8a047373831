package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT 配置（设备直连采样上报，默认禁用）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// PersistConfig 双写协调器配置
type PersistConfig struct {
	PrimaryTimeout time.Duration // 主库单次写入超时
	MirrorTimeout  time.Duration // 镜像写入超时
	MaxAttempts    int           // 主库有界重试次数
	RetryBackoff   time.Duration
	QueueDepth     int           // 每会话持久化队列深度
	DrainGrace     time.Duration // 会话结束后主库在途写入的排空宽限期
}

// DisplayConfig 归一化映射配置（与渲染层约定：每个采样一个映射坐标）
type DisplayConfig struct {
	Baseline float64
	Offset   float64
	Span     float64
	Alpha    float64
}

// Config fisio-telemetry 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}
	// PrimaryMode 主库模式："postgres"（本服务直写数据库）或 "http"（远端存储服务）
	PrimaryMode    string
	PrimaryAddress string
	Database       DatabaseConfig
	Redis          RedisConfig
	MQTT           MQTTConfig
	Persist        PersistConfig
	Display        DisplayConfig
	WindowCapacity int
	RewardStream   string
	Log            struct {
		Level  string
		Format string
	}
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")

	cfg.PrimaryMode = getEnv("PRIMARY_MODE", "postgres")
	cfg.PrimaryAddress = getEnv("PRIMARY_HTTP_ADDRESS", "http://localhost:8000")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "fisio")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "fisio-telemetry")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "sensors/+")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Persist.PrimaryTimeout = parseDuration(getEnv("PERSIST_PRIMARY_TIMEOUT", "5s"), 5*time.Second)
	cfg.Persist.MirrorTimeout = parseDuration(getEnv("PERSIST_MIRROR_TIMEOUT", "2s"), 2*time.Second)
	cfg.Persist.MaxAttempts = parseInt(getEnv("PERSIST_MAX_ATTEMPTS", "3"), 3)
	cfg.Persist.RetryBackoff = parseDuration(getEnv("PERSIST_RETRY_BACKOFF", "200ms"), 200*time.Millisecond)
	cfg.Persist.QueueDepth = parseInt(getEnv("PERSIST_QUEUE_DEPTH", "256"), 256)
	cfg.Persist.DrainGrace = parseDuration(getEnv("PERSIST_DRAIN_GRACE", "3s"), 3*time.Second)

	// 默认值来自渲染层画布约定：高度 750，0.2V~0.7V 有效区间，平滑系数 0.1
	cfg.Display.Baseline = parseFloat(getEnv("DISPLAY_BASELINE", "750"), 750)
	cfg.Display.Offset = parseFloat(getEnv("DISPLAY_OFFSET", "0.2"), 0.2)
	cfg.Display.Span = parseFloat(getEnv("DISPLAY_SPAN", "0.5"), 0.5)
	cfg.Display.Alpha = parseFloat(getEnv("DISPLAY_ALPHA", "0.1"), 0.1)

	cfg.WindowCapacity = parseInt(getEnv("WINDOW_CAPACITY", "50"), 50)
	cfg.RewardStream = getEnv("REWARD_STREAM", "session-events")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
