package config

import "github.com/spf13/viper"

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 15)
	viper.SetDefault("server.writeTimeout", 15)
	viper.SetDefault("server.allowedOrigins", []string{})

	// WebSocket
	viper.SetDefault("websocket.messageSizeLimit", 4096)
	viper.SetDefault("websocket.handshakeTimeout", 10)
	viper.SetDefault("websocket.writeTimeout", 10)
	viper.SetDefault("websocket.sendBuffer", 64)
	viper.SetDefault("websocket.pingInterval", 30)
	viper.SetDefault("websocket.stalenessTimeout", 35)

	// Game
	viper.SetDefault("game.reconnectionWindow", 120)
	viper.SetDefault("game.grantRateLimit", 30)

	// Auth. There is no usable default: a missing secret is a fatal
	// startup error caught by Validate.
	viper.SetDefault("auth.tokenSecret", "")

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}
