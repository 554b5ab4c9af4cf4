package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roomcast-io/roomcast/internal/log"
)

type Config struct {
	Server    ServerConfig
	Room      RoomConfig
	Store     StoreConfig
	Redis     RedisConfig
	WebSocket WebSocketConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type RoomConfig struct {
	Name         string
	HistoryLimit int    `mapstructure:"history_limit"`
	SenderLabel  string `mapstructure:"sender_label"`
}

type StoreConfig struct {
	Driver string // "bolt" or "redis"
	Path   string // bolt database file
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string `mapstructure:"key_prefix"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("room.name", "global-chat-room")
	v.SetDefault("room.history_limit", 20)
	v.SetDefault("room.sender_label", "User")
	v.SetDefault("store.driver", "bolt")
	v.SetDefault("store.path", "roomcast.db")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "roomcast")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("room.name", "ROOM_NAME")
	v.BindEnv("room.history_limit", "ROOM_HISTORY_LIMIT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.path", "STORE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, rely on defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)

	if cfg.Room.HistoryLimit <= 0 {
		return nil, fmt.Errorf("room.history_limit must be positive, got %d", cfg.Room.HistoryLimit)
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
