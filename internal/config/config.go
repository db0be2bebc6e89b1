package config

import (
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Orchestrator   OrchestratorConfig   `mapstructure:"orchestrator"`
	Topics         []TopicConfig        `mapstructure:"topics"`
	KeyService     KeyServiceConfig     `mapstructure:"keyservice"`
	Target         TargetConfig         `mapstructure:"target"`
	Transform      TransformConfig      `mapstructure:"transform"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         int             `mapstructure:"port"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	GroupID  string   `mapstructure:"group_id"`
	// TopicRegex selects the consumed topics; topics created later are picked up.
	TopicRegex                  string        `mapstructure:"topic_regex"`
	PollTimeout                 time.Duration `mapstructure:"poll_timeout"`
	MaxPollRecords              int           `mapstructure:"max_poll_records"`
	SubscriptionRefreshInterval time.Duration `mapstructure:"subscription_refresh_interval"`
	DLQTopic                    string        `mapstructure:"dlq_topic"`
}

type OrchestratorConfig struct {
	// MaxConcurrentPartitions bounds partition fan-out; 0 means one goroutine per partition.
	MaxConcurrentPartitions int `mapstructure:"max_concurrent_partitions"`
}

// TopicConfig binds a source topic to its target table and pipeline components.
type TopicConfig struct {
	Name           string       `mapstructure:"name"`
	Table          string       `mapstructure:"table"`
	NaturalIDField string       `mapstructure:"natural_id_field"`
	Transformer    string       `mapstructure:"transformer"`
	Filter         FilterConfig `mapstructure:"filter"`
}

type FilterConfig struct {
	RequiredField string `mapstructure:"required_field"`
	Expression    string `mapstructure:"expression"`
}

type KeyServiceConfig struct {
	Type        string          `mapstructure:"type"`
	Region      string          `mapstructure:"region"`
	Endpoint    string          `mapstructure:"endpoint"`
	CMKAlias    string          `mapstructure:"cmk_alias"`
	DataKeySpec string          `mapstructure:"data_key_spec"`
	MasterKey   string          `mapstructure:"master_key"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Retry       RetryConfig     `mapstructure:"retry"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Cache       KeyCacheConfig  `mapstructure:"cache"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

type KeyCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type TargetConfig struct {
	Success SuccessTargetConfig `mapstructure:"success"`
	Failure FailureTargetConfig `mapstructure:"failure"`
}

type SuccessTargetConfig struct {
	Type string `mapstructure:"type"`
}

type FailureTargetConfig struct {
	Type        string `mapstructure:"type"`
	RedisStream string `mapstructure:"redis_stream"`
}

type TransformConfig struct {
	NinoSalt string `mapstructure:"nino_salt"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

// Topic returns the configuration of a source topic.
func (c *Config) Topic(name string) (TopicConfig, bool) {
	for _, t := range c.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicConfig{}, false
}

// TableName is the configured table, or the last dot separated segment of
// the topic name.
func (t TopicConfig) TableName() string {
	if t.Table != "" {
		return t.Table
	}
	return t.Name[strings.LastIndex(t.Name, ".")+1:]
}

// IDFields maps each topic to the message._id field holding its natural id.
func (c *Config) IDFields() map[string]string {
	fields := make(map[string]string, len(c.Topics))
	for _, t := range c.Topics {
		fields[t.Name] = t.NaturalIDField
	}
	return fields
}

// TargetTables lists the distinct success target tables.
func (c *Config) TargetTables() []string {
	seen := make(map[string]bool, len(c.Topics))
	var tables []string
	for _, t := range c.Topics {
		name := t.TableName()
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	return tables
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
