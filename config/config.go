package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Game      GameConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	ReadTimeout    int // Seconds
	WriteTimeout   int // Seconds
	AllowedOrigins []string
}

type WebSocketConfig struct {
	MessageSizeLimit int // Bytes
	HandshakeTimeout int // Seconds
	WriteTimeout     int // Seconds
	SendBuffer       int // Queued outbound messages per connection
	PingInterval     int // Seconds
	StalenessTimeout int // Seconds
}

type GameConfig struct {
	ReconnectionWindow int // Seconds
	GrantRateLimit     int // Seconds
}

type AuthConfig struct {
	TokenSecret string
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

var (
	instance *AppConfig
	once     sync.Once
)

func Initialize(env string) error {
	var initErr error
	once.Do(func() {
		viper.SetConfigName(fmt.Sprintf("config.%s", env))
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")

		viper.AutomaticEnv()
		viper.SetEnvPrefix("CHECKBRO")

		setDefaults()
		bindEnvVars()

		if err := viper.ReadInConfig(); err != nil {
			// The server can run entirely from defaults and env vars.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				initErr = fmt.Errorf("config file error: %w", err)
				return
			}
		}

		if err := viper.Unmarshal(&instance); err != nil {
			initErr = fmt.Errorf("config unmarshal error: %w", err)
			return
		}

		if err := instance.Validate(); err != nil {
			initErr = fmt.Errorf("config validation failed: %w", err)
			return
		}
	})
	return initErr
}

func Get() *AppConfig {
	return instance
}
