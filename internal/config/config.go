package config

import (
	"fmt"
	"os"
)

// BoardConfig 生物传感器板连接配置
type BoardConfig struct {
	BoardID        int    // 板卡型号 ID，-1 表示内置合成板（无硬件调试用）
	SerialPort     string
	MACAddress     string
	IPAddress      string
	IPPort         int
	Timeout        int // 设备发现/连接超时（秒）
	StreamerParams string
}

// MQTTConfig MQTT发布配置
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string // 指标主题前缀，如 "vitals"，指标发布到 <prefix>/<key>
}

// RedisConfig Redis Streams 镜像配置
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string // 聚合记录镜像到的 stream
}

// DatabaseConfig 时序数据落库配置
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config vitals-bridge 服务配置
type Config struct {
	Board    BoardConfig
	MQTT     MQTTConfig
	Redis    RedisConfig
	Database DatabaseConfig

	// 采集/计算参数
	Sampling struct {
		WindowSeconds int     // 计算窗口长度（秒）
		RefreshRateHz int     // 主循环目标刷新率
		EMADecay      float64 // 平滑系数（按刷新率折算前的原始值）
	}

	// 心率指标源配置
	HeartRate struct {
		Enabled  bool
		FFTSize  int     // 变换点数
		EMADecay float64 // 心率源独立的平滑系数（不按刷新率折算）
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Board.BoardID = getEnvInt("BOARD_ID", -1)
	cfg.Board.SerialPort = getEnv("BOARD_SERIAL_PORT", "")
	cfg.Board.MACAddress = getEnv("BOARD_MAC_ADDRESS", "")
	cfg.Board.IPAddress = getEnv("BOARD_IP_ADDRESS", "")
	cfg.Board.IPPort = getEnvInt("BOARD_IP_PORT", 0)
	cfg.Board.Timeout = getEnvInt("BOARD_TIMEOUT", 0)
	cfg.Board.StreamerParams = getEnv("BOARD_STREAMER_PARAMS", "")

	cfg.Sampling.WindowSeconds = getEnvInt("WINDOW_SECONDS", 2)
	cfg.Sampling.RefreshRateHz = getEnvInt("REFRESH_RATE", 60)
	cfg.Sampling.EMADecay = getEnvFloat("EMA_DECAY", 1.0)

	cfg.HeartRate.Enabled = getEnvBool("HEART_RATE_ENABLED", true)
	cfg.HeartRate.FFTSize = getEnvInt("HEART_RATE_FFT_SIZE", 1024)
	cfg.HeartRate.EMADecay = getEnvFloat("HEART_RATE_EMA_DECAY", 0.025)

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", true)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "vitals-bridge")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "vitals")

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Stream = getEnv("REDIS_STREAM", "vitals:metrics:stream")

	cfg.Database.Enabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "vitals")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate 校验关键参数（窗口长度不足会破坏频谱估计的前置条件）
func (c *Config) validate() error {
	if c.Sampling.RefreshRateHz <= 0 {
		return fmt.Errorf("invalid refresh rate: %d", c.Sampling.RefreshRateHz)
	}
	if c.Sampling.WindowSeconds <= 0 {
		return fmt.Errorf("invalid window seconds: %d", c.Sampling.WindowSeconds)
	}
	if c.Sampling.EMADecay <= 0 || c.Sampling.EMADecay > float64(c.Sampling.RefreshRateHz) {
		return fmt.Errorf("ema decay must be in (0, refresh_rate]: %f", c.Sampling.EMADecay)
	}
	if c.HeartRate.Enabled {
		if c.HeartRate.FFTSize <= 0 {
			return fmt.Errorf("invalid heart rate fft size: %d", c.HeartRate.FFTSize)
		}
		if c.HeartRate.EMADecay <= 0 || c.HeartRate.EMADecay > 1 {
			return fmt.Errorf("heart rate ema decay must be in (0, 1]: %f", c.HeartRate.EMADecay)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
