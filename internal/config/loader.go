package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"claimant-consumer/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.rate_limit.rps", 10.0)
	viper.SetDefault("server.rate_limit.burst", 20)

	viper.SetDefault("broker.kafka.client_id", constants.ServiceName)
	viper.SetDefault("broker.kafka.topic_regex", constants.DefaultTopicRegex)
	viper.SetDefault("broker.kafka.poll_timeout", constants.DefaultPollTimeout)
	viper.SetDefault("broker.kafka.max_poll_records", constants.DefaultMaxPollRecords)
	viper.SetDefault("broker.kafka.subscription_refresh_interval", constants.DefaultSubscriptionRefreshInterval)

	viper.SetDefault("keyservice.type", constants.KeyServiceKMS)
	viper.SetDefault("keyservice.data_key_spec", constants.DefaultDataKeySpec)
	viper.SetDefault("keyservice.timeout", "5s")
	viper.SetDefault("keyservice.retry.max_attempts", 3)
	viper.SetDefault("keyservice.retry.initial_interval", "200ms")
	viper.SetDefault("keyservice.retry.max_interval", "5s")
	viper.SetDefault("keyservice.retry.multiplier", 2.0)
	viper.SetDefault("keyservice.cache.size", constants.DefaultKeyCacheSize)
	viper.SetDefault("keyservice.cache.ttl", constants.DefaultKeyCacheTTL)

	viper.SetDefault("target.success.type", constants.SuccessTargetPostgres)
	viper.SetDefault("target.failure.type", constants.FailureTargetLog)
	viper.SetDefault("target.failure.redis_stream", constants.DefaultRedisStream)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("tracing.service_name", constants.ServiceName)
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.topic_regex", "BROKER_KAFKA_TOPIC_REGEX")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("keyservice.type", "KEYSERVICE_TYPE")
	viper.BindEnv("keyservice.region", "KEYSERVICE_REGION")
	viper.BindEnv("keyservice.endpoint", "KEYSERVICE_ENDPOINT")
	viper.BindEnv("keyservice.cmk_alias", "KEYSERVICE_CMK_ALIAS")
	viper.BindEnv("keyservice.master_key", "KEYSERVICE_MASTER_KEY")

	viper.BindEnv("transform.nino_salt", "TRANSFORM_NINO_SALT")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

// applyEnvOverrides handles values viper cannot decode from a plain env string.
func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
