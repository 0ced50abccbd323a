package config

import (
	"errors"

	"github.com/spf13/viper"
)

func (c *AppConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	if c.Auth.TokenSecret == "" {
		return errors.New("auth.tokenSecret must be set (CHECKBRO_AUTH_TOKEN_SECRET)")
	}

	if c.WebSocket.MessageSizeLimit < 1 {
		return errors.New("message size limit must be positive")
	}

	if c.WebSocket.SendBuffer < 1 {
		return errors.New("send buffer must be positive")
	}

	if c.WebSocket.PingInterval < 1 {
		return errors.New("ping interval must be at least 1 second")
	}

	if c.WebSocket.PingInterval >= c.WebSocket.StalenessTimeout {
		return errors.New("ping interval should be less than staleness timeout")
	}

	if c.Game.ReconnectionWindow < 1 {
		return errors.New("reconnection window must be at least 1 second")
	}

	if c.Game.GrantRateLimit >= c.Game.ReconnectionWindow {
		return errors.New("grant rate limit should be less than the reconnection window")
	}

	return nil
}

func bindEnvVars() {
	// Server
	viper.BindEnv("server.port", "CHECKBRO_PORT")
	viper.BindEnv("server.allowedOrigins", "CHECKBRO_ALLOWED_ORIGINS")

	// Auth
	viper.BindEnv("auth.tokenSecret", "CHECKBRO_AUTH_TOKEN_SECRET")

	// WebSocket
	viper.BindEnv("websocket.messageSizeLimit", "CHECKBRO_MESSAGE_SIZE_LIMIT")
	viper.BindEnv("websocket.handshakeTimeout", "CHECKBRO_HANDSHAKE_TIMEOUT")
	viper.BindEnv("websocket.pingInterval", "CHECKBRO_PING_INTERVAL")
	viper.BindEnv("websocket.stalenessTimeout", "CHECKBRO_STALENESS_TIMEOUT")
	viper.BindEnv("websocket.writeTimeout", "CHECKBRO_WRITE_TIMEOUT")

	// Game
	viper.BindEnv("game.reconnectionWindow", "CHECKBRO_RECONNECTION_WINDOW")
	viper.BindEnv("game.grantRateLimit", "CHECKBRO_GRANT_RATE_LIMIT")

	// Metrics
	viper.BindEnv("metrics.enabled", "CHECKBRO_METRICS_ENABLED")
	viper.BindEnv("metrics.port", "CHECKBRO_METRICS_PORT")

	// Logging
	viper.BindEnv("log.level", "CHECKBRO_LOG_LEVEL")
	viper.BindEnv("log.pretty", "CHECKBRO_LOG_PRETTY")
}
