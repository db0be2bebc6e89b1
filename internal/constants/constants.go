package constants

import "time"

const (
	ServiceName = "claimant-consumer"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultPollTimeout                 = 3 * time.Second
	DefaultMaxPollRecords              = 500
	DefaultSubscriptionRefreshInterval = 10 * time.Second
	DefaultTopicRegex                  = `^db\..+`
)

const (
	ShutdownTimeout = 5 * time.Second
	HealthTimeout   = 5 * time.Second
)

const (
	ClaimantTopic  = "db.core.claimant"
	ContractTopic  = "db.core.contract"
	StatementTopic = "db.core.statement"
)

const (
	TransformerClaimant    = "claimant"
	TransformerContract    = "contract"
	TransformerStatement   = "statement"
	TransformerPassthrough = "passthrough"
)

const (
	SuccessTargetPostgres = "postgres"
	SuccessTargetMongoDB  = "mongodb"
)

const (
	FailureTargetKafka = "kafka"
	FailureTargetRedis = "redis"
	FailureTargetLog   = "log"
)

const (
	KeyServiceKMS   = "kms"
	KeyServiceLocal = "local"
)

const (
	DefaultDataKeySpec  = "AES_256"
	DefaultRedisStream  = "cdc:failures"
	DefaultMongoDBName  = "claimant"
	DefaultKeyCacheSize = 1024
	DefaultKeyCacheTTL  = 15 * time.Minute
)

// DLQ record headers.
const (
	HeaderSourceTopic     = "source-topic"
	HeaderSourcePartition = "source-partition"
	HeaderSourceOffset    = "source-offset"
	HeaderFailureCode     = "failure-code"
	HeaderFailureReason   = "failure-reason"
)
