// =============================================================================
// 📦 crewflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Project:   DefaultProjectConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Artifacts: DefaultArtifactsConfig(),
		State:     DefaultStateConfig(),
		LLM:       DefaultLLMConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultProjectConfig 返回默认项目配置
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		Root:       "./projects/active",
		PromptsDir: "agents",
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Pattern:     "sequential",
		StateFile:   "workflow.json",
		MaxParallel: 1,
	}
}

// DefaultArtifactsConfig 返回默认产物存储配置
func DefaultArtifactsConfig() ArtifactsConfig {
	return ArtifactsConfig{
		Backend:   "file",
		Dir:       "context",
		KeyPrefix: "crewflow",
	}
}

// DefaultStateConfig 返回默认状态存储配置
func DefaultStateConfig() StateConfig {
	return StateConfig{
		Type:      "file",
		BaseDir:   ".crewflow/state",
		KeyPrefix: "crewflow:",
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "openai",
		BaseURL:        "https://api.openai.com",
		Model:          "gpt-4o-mini",
		MaxTokens:      4096,
		Temperature:    0.7,
		Timeout:        2 * time.Minute,
		RateLimitBurst: 1,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crewflow",
		Name:            "crewflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,

		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "crewflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   0.1,
	}
}
