// =============================================================================
// 📦 BenchDuo 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Connector: DefaultConnectorConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		HTTPPort:        5005,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MetricsEnabled:  true,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path:         "benchduo.db",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

// DefaultConnectorConfig 返回默认连接器配置
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		Timeout:       2 * time.Minute,
		DetectTimeout: 3 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}
