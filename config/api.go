package config

import (
	"time"

	"github.com/rs/zerolog"
)

// DBDialect allows us to define constants for supported databases
type DBDialect string

// LogLevel represents the log level logger should use
type LogLevel uint8

const (
	// SQLite3Dialect represents the DB Dialect for SQLite3
	SQLite3Dialect DBDialect = "sqlite3"
	// MySQLDialect represents the DB Dialect for MySQL
	MySQLDialect DBDialect = "mysql"
	// Debug is the lowest LogLevel, will expose all logs
	Debug LogLevel = LogLevel(uint8(zerolog.DebugLevel))
	// Info is the second lowest LogLevel
	Info LogLevel = LogLevel(uint8(zerolog.InfoLevel))
	// Error is the second highest LogLevel
	Error LogLevel = LogLevel(uint8(zerolog.ErrorLevel))
	// Fatal is the highest LogLevel with lowest logs
	Fatal LogLevel = LogLevel(uint8(zerolog.FatalLevel))
)

// RelationalDatabaseConfig represents DB configuration related behaviors
type RelationalDatabaseConfig interface {
	GetDBDialect() DBDialect
	GetDBConnectionURL() string
	GetDBConnectionMaxIdleTime() time.Duration
	GetDBConnectionMaxLifetime() time.Duration
	GetMaxIdleDBConnections() uint16
	GetMaxOpenDBConnections() uint16
}

// HTTPConfig represents the HTTP configuration related behaviors
type HTTPConfig interface {
	GetHTTPListeningAddr() string
	GetHTTPReadTimeout() uint
	GetHTTPWriteTimeout() uint
}

// LogConfig represents the interface for log related configuration
type LogConfig interface {
	GetLogLevel() LogLevel
	IsLoggerConfigAvailable() bool
	GetLogFilename() string
	GetMaxLogFileSize() uint
	GetMaxLogBackups() uint
	GetMaxAgeForALogFile() uint
	IsCompressionEnabledOnLogBackups() bool
}

// QueueConfig provides the interface for configuring the bounded pipeline queues
type QueueConfig interface {
	GetFrameQueueCapacity() uint
	GetFrameQueueOverflowPolicy() string
	GetBatchQueueCapacity() uint
	GetBatchQueueOverflowPolicy() string
	GetDequeueTimeout() time.Duration
}

// RetryConfig provides the interface for configuring retry with exponential backoff
type RetryConfig interface {
	GetMaxRetries() uint
	GetRetryBaseDelay() time.Duration
	GetRetryMaxDelay() time.Duration
	GetRetryBackoffMultiplier() float64
}

// BreakerSettings carries circuit breaker thresholds for one protected dependency
type BreakerSettings struct {
	FailureThreshold uint
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls uint
	SuccessThreshold uint
}

// CircuitBreakerConfig provides the interface for configuring circuit breakers; the
// defaults come from the circuit-breaker section and per-dependency child sections
// (for example circuit-breaker.detector) override them
type CircuitBreakerConfig interface {
	GetBreakerSettings(dependency string) BreakerSettings
}

// BatchConfig provides the interface for configuring per-source batch aggregation
type BatchConfig interface {
	GetBatchWindowDuration() time.Duration
	GetBatchIdleDuration() time.Duration
	GetBatchSweepInterval() time.Duration
	GetBatchStateTTL() time.Duration
}

// StateStoreConfig provides the interface for the TTL batch-state store
type StateStoreConfig interface {
	IsStateStoreEnabled() bool
	GetStateStoreRedisURL() string
}

// BroadcastConfig provides the interface for configuring live result distribution
type BroadcastConfig interface {
	GetDistributionURL() string
	GetMaxDistributionReconnectAttempts() uint
	GetDistributionSuperviseInterval() time.Duration
	GetSessionSendBufferSize() uint
}

// PipelineConfig provides the interface for configuring the pipeline stages
type PipelineConfig interface {
	GetDetectionWorkerCount() uint
	GetAnalysisWorkerCount() uint
	GetDetectorBaseURL() string
	GetAnalysisBaseURL() string
	GetServiceConnectionTimeout() time.Duration
	GetServiceUserAgent() string
	GetFastPathConfidenceThreshold() float64
}

// RetentionConfig provides the interface for configuring archival and pruning of old
// detections and assessments
type RetentionConfig interface {
	IsRetentionEnabled() bool
	GetRetentionPeriod() time.Duration
	GetRetentionSweepInterval() time.Duration
	GetRetentionBatchSize() uint
	GetArchiveExportPath() string
	GetArchiveNodeName() string
	GetMaxArchiveFileSizeInMB() uint
}

// DLQConfig represents configuration related to dead letter queue observability
type DLQConfig interface {
	// GetDLQGaugeUpdateInterval returns the interval between DLQ gauge update runs
	GetDLQGaugeUpdateInterval() time.Duration
}
