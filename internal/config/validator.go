package config

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"claimant-consumer/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks everything that can be verified without network access.
// All problems are reported together.
func ValidateStatic(cfg *Config) error {
	return multierr.Combine(
		validateServer(cfg.Server),
		validateKafka(cfg.Broker.Kafka),
		validateTopics(cfg.Topics),
		validateKeyService(cfg.KeyService),
		validateTargets(cfg),
		validateDatabase(cfg.Database),
	)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return &ValidationError{Field: "server", Message: "read and write timeouts must be positive"}
	}
	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if _, err := regexp.Compile(cfg.TopicRegex); err != nil || cfg.TopicRegex == "" {
		return &ValidationError{
			Field:   "broker.kafka.topic_regex",
			Message: fmt.Sprintf("invalid topic pattern %q", cfg.TopicRegex),
		}
	}

	if cfg.PollTimeout <= 0 {
		return &ValidationError{Field: "broker.kafka.poll_timeout", Message: "poll timeout must be positive"}
	}

	if cfg.MaxPollRecords <= 0 {
		return &ValidationError{Field: "broker.kafka.max_poll_records", Message: "max_poll_records must be positive"}
	}

	return nil
}

var knownTransformers = map[string]bool{
	constants.TransformerClaimant:    true,
	constants.TransformerContract:    true,
	constants.TransformerStatement:   true,
	constants.TransformerPassthrough: true,
}

func validateTopics(topics []TopicConfig) error {
	seen := make(map[string]bool, len(topics))
	var errs error

	for i, t := range topics {
		field := fmt.Sprintf("topics[%d]", i)
		switch {
		case t.Name == "":
			errs = multierr.Append(errs, &ValidationError{Field: field + ".name", Message: "topic name is required"})
			continue
		case seen[t.Name]:
			errs = multierr.Append(errs, &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate topic %s", t.Name)})
		}
		seen[t.Name] = true

		if t.NaturalIDField == "" {
			errs = multierr.Append(errs, &ValidationError{Field: field + ".natural_id_field", Message: "natural id field is required"})
		}
		if t.Transformer != "" && !knownTransformers[t.Transformer] {
			errs = multierr.Append(errs, &ValidationError{
				Field:   field + ".transformer",
				Message: fmt.Sprintf("unknown transformer %s", t.Transformer),
			})
		}
	}

	return errs
}

func validateKeyService(cfg KeyServiceConfig) error {
	switch cfg.Type {
	case constants.KeyServiceKMS:
		if cfg.CMKAlias == "" {
			return &ValidationError{Field: "keyservice.cmk_alias", Message: "master key alias is required for kms"}
		}
	case constants.KeyServiceLocal:
		key, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
		if err != nil || len(key) != 32 {
			return &ValidationError{Field: "keyservice.master_key", Message: "master key must be 32 base64 encoded bytes"}
		}
	default:
		return &ValidationError{
			Field:   "keyservice.type",
			Message: fmt.Sprintf("unknown key service type: %s (supported: kms, local)", cfg.Type),
		}
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS <= 0 {
		return &ValidationError{Field: "keyservice.rate_limit.rps", Message: "rps must be positive"}
	}
	if cfg.Cache.Enabled && cfg.Cache.Size <= 0 {
		return &ValidationError{Field: "keyservice.cache.size", Message: "cache size must be positive"}
	}
	return nil
}

func validateTargets(cfg *Config) error {
	var errs error

	switch cfg.Target.Success.Type {
	case constants.SuccessTargetPostgres:
		if cfg.Database.Postgres.Host == "" {
			errs = multierr.Append(errs, &ValidationError{Field: "database.postgres.host", Message: "postgres success target needs a database"})
		}
	case constants.SuccessTargetMongoDB:
		if cfg.Database.MongoDB.URI == "" {
			errs = multierr.Append(errs, &ValidationError{Field: "database.mongodb.uri", Message: "mongodb success target needs a database"})
		}
	default:
		errs = multierr.Append(errs, &ValidationError{
			Field:   "target.success.type",
			Message: fmt.Sprintf("unknown success target: %s (supported: postgres, mongodb)", cfg.Target.Success.Type),
		})
	}

	switch cfg.Target.Failure.Type {
	case constants.FailureTargetKafka:
		if cfg.Broker.Kafka.DLQTopic == "" {
			errs = multierr.Append(errs, &ValidationError{Field: "broker.kafka.dlq_topic", Message: "kafka failure target needs a dlq topic"})
		}
	case constants.FailureTargetRedis:
		if cfg.Database.Redis.Host == "" {
			errs = multierr.Append(errs, &ValidationError{Field: "database.redis.host", Message: "redis failure target needs a redis host"})
		}
	case constants.FailureTargetLog:
	default:
		errs = multierr.Append(errs, &ValidationError{
			Field:   "target.failure.type",
			Message: fmt.Sprintf("unknown failure target: %s (supported: kafka, redis, log)", cfg.Target.Failure.Type),
		})
	}

	return errs
}

func validateDatabase(cfg DatabaseConfig) error {
	var errs error

	if cfg.Postgres.Host != "" {
		errs = multierr.Append(errs, validatePostgres(cfg.Postgres))
	}

	if cfg.MongoDB.URI != "" {
		if !strings.HasPrefix(cfg.MongoDB.URI, "mongodb://") && !strings.HasPrefix(cfg.MongoDB.URI, "mongodb+srv://") {
			errs = multierr.Append(errs, &ValidationError{
				Field:   "database.mongodb.uri",
				Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
			})
		}
	}

	if cfg.Redis.Host != "" && (cfg.Redis.Port < 1 || cfg.Redis.Port > 65535) {
		errs = multierr.Append(errs, &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Redis.Port),
		})
	}

	return errs
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" || cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres",
			Message: "PostgreSQL user and database name are required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s", cfg.SSLMode),
		}
	}

	return nil
}
