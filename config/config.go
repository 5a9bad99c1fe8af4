package config

import (
	"os/user"
	"strings"
	"time"

	"github.com/go-ini/ini"
)

// AppVersion is the version string type
type AppVersion string

// GetVersion provides the current version of the project
func GetVersion() AppVersion {
	return "0.1-dev"
}

const (
	// ConfigFilename is the default config file name
	ConfigFilename = "sentinel-pipeline.cfg"
	// DefaultSystemConfigFilePath is the default system location of the configuration
	DefaultSystemConfigFilePath = "/etc/sentinel-pipeline/" + ConfigFilename
	// DefaultCurrentDirConfigFilePath is the config file path based on current working dir
	DefaultCurrentDirConfigFilePath = ConfigFilename

	breakerSectionPrefix = "circuit-breaker"
)

var (
	// EmptyConfigurationForError Represents the configuration instance to be
	// used when there is a configuration error during load
	EmptyConfigurationForError = &Config{}

	defaultLoadFunc = func(configFilePath string) (*ini.File, error) {
		if len(configFilePath) > 0 {
			return ini.LooseLoad([]byte(DefaultConfiguration), DefaultSystemConfigFilePath, getUserHomeDirBasedDefaultConfigFileLocation(), DefaultCurrentDirConfigFilePath, configFilePath)
		}
		return ini.LooseLoad([]byte(DefaultConfiguration), DefaultSystemConfigFilePath, getUserHomeDirBasedDefaultConfigFileLocation(), DefaultCurrentDirConfigFilePath)
	}
	loadConfiguration = defaultLoadFunc
)

var currentUser = user.Current

func getUserHomeDirBasedDefaultConfigFileLocation() string {
	user, err := currentUser()
	if err != nil {
		return DefaultCurrentDirConfigFilePath
	}
	return user.HomeDir + "/.sentinel-pipeline/" + ConfigFilename
}

// Config represents the application configuration
type Config struct {
	dbDialect                   DBDialect
	dbConnectionURL             string
	dbConnectionMaxIdleTime     time.Duration
	dbConnectionMaxLifetime     time.Duration
	dbMaxIdleConnections        uint16
	dbMaxOpenConnections        uint16
	httpListeningAddr           string
	httpReadTimeout             uint
	httpWriteTimeout            uint
	logFilename                 string
	logLevel                    LogLevel
	maxFileSize                 uint
	maxBackups                  uint
	maxAge                      uint
	compressBackupsEnabled      bool
	frameQueueCapacity          uint
	frameQueueOverflowPolicy    string
	batchQueueCapacity          uint
	batchQueueOverflowPolicy    string
	dequeueTimeout              time.Duration
	maxRetries                  uint
	retryBaseDelay              time.Duration
	retryMaxDelay               time.Duration
	retryBackoffMultiplier      float64
	defaultBreakerSettings      BreakerSettings
	breakerOverrides            map[string]BreakerSettings
	batchWindowDuration         time.Duration
	batchIdleDuration           time.Duration
	batchSweepInterval          time.Duration
	batchStateTTL               time.Duration
	stateStoreEnabled           bool
	stateStoreRedisURL          string
	distributionURL             string
	maxReconnectAttempts        uint
	superviseInterval           time.Duration
	sessionSendBufferSize       uint
	detectionWorkerCount        uint
	analysisWorkerCount         uint
	detectorBaseURL             string
	analysisBaseURL             string
	serviceConnectionTimeout    time.Duration
	serviceUserAgent            string
	fastPathConfidenceThreshold float64
	dlqGaugeUpdateInterval      time.Duration
	retentionEnabled            bool
	retentionPeriod             time.Duration
	retentionSweepInterval      time.Duration
	retentionBatchSize          uint
	archiveExportPath           string
	archiveNodeName             string
	maxArchiveFileSizeInMB      uint
}

// GetDBDialect returns the DB dialect of the configuration
func (config *Config) GetDBDialect() DBDialect {
	return config.dbDialect
}

// GetDBConnectionURL returns the DB Connection URL string
func (config *Config) GetDBConnectionURL() string {
	return config.dbConnectionURL
}

// GetDBConnectionMaxIdleTime returns the DB Connection max idle time
func (config *Config) GetDBConnectionMaxIdleTime() time.Duration {
	return config.dbConnectionMaxIdleTime
}

// GetDBConnectionMaxLifetime returns the DB Connection max lifetime
func (config *Config) GetDBConnectionMaxLifetime() time.Duration {
	return config.dbConnectionMaxLifetime
}

// GetMaxIdleDBConnections returns the maximum number of idle DB connections to retain in pool
func (config *Config) GetMaxIdleDBConnections() uint16 {
	return config.dbMaxIdleConnections
}

// GetMaxOpenDBConnections returns the maximum number of concurrent DB connections to keep open
func (config *Config) GetMaxOpenDBConnections() uint16 {
	return config.dbMaxOpenConnections
}

// GetHTTPListeningAddr retrieves the connection string to listen to
func (config *Config) GetHTTPListeningAddr() string {
	return config.httpListeningAddr
}

// GetHTTPReadTimeout retrieves the connection read timeout
func (config *Config) GetHTTPReadTimeout() uint {
	return config.httpReadTimeout
}

// GetHTTPWriteTimeout retrieves the connection write timeout
func (config *Config) GetHTTPWriteTimeout() uint {
	return config.httpWriteTimeout
}

// IsLoggerConfigAvailable checks is logger configuration is set since its optional
func (config *Config) IsLoggerConfigAvailable() bool {
	return len(config.logFilename) > 0
}

// GetLogFilename retrieves the file name of the log
func (config *Config) GetLogFilename() string {
	return config.logFilename
}

// GetLogLevel retrieves the configured log level
func (config *Config) GetLogLevel() LogLevel {
	return config.logLevel
}

// GetMaxLogFileSize retrieves the max log file size before its rotated in MB
func (config *Config) GetMaxLogFileSize() uint {
	return config.maxFileSize
}

// GetMaxLogBackups retrieves max rotated logs to retain
func (config *Config) GetMaxLogBackups() uint {
	return config.maxBackups
}

// GetMaxAgeForALogFile retrieves maximum day to retain a rotated log file
func (config *Config) GetMaxAgeForALogFile() uint {
	return config.maxAge
}

// IsCompressionEnabledOnLogBackups checks if log backups are compressed
func (config *Config) IsCompressionEnabledOnLogBackups() bool {
	return config.compressBackupsEnabled
}

// GetFrameQueueCapacity retrieves the bound of the ingest frame queue
func (config *Config) GetFrameQueueCapacity() uint {
	return config.frameQueueCapacity
}

// GetFrameQueueOverflowPolicy retrieves the overflow policy name of the frame queue
func (config *Config) GetFrameQueueOverflowPolicy() string {
	return config.frameQueueOverflowPolicy
}

// GetBatchQueueCapacity retrieves the bound of the closed batch queue
func (config *Config) GetBatchQueueCapacity() uint {
	return config.batchQueueCapacity
}

// GetBatchQueueOverflowPolicy retrieves the overflow policy name of the batch queue
func (config *Config) GetBatchQueueOverflowPolicy() string {
	return config.batchQueueOverflowPolicy
}

// GetDequeueTimeout retrieves how long a worker blocks on an empty queue before
// treating the wait as an idle signal
func (config *Config) GetDequeueTimeout() time.Duration {
	return config.dequeueTimeout
}

// GetMaxRetries retrieves the number of retries after the initial attempt
func (config *Config) GetMaxRetries() uint {
	return config.maxRetries
}

// GetRetryBaseDelay retrieves the backoff delay before the first retry
func (config *Config) GetRetryBaseDelay() time.Duration {
	return config.retryBaseDelay
}

// GetRetryMaxDelay retrieves the cap applied to the computed backoff delay
func (config *Config) GetRetryMaxDelay() time.Duration {
	return config.retryMaxDelay
}

// GetRetryBackoffMultiplier retrieves the exponential growth factor of the backoff
func (config *Config) GetRetryBackoffMultiplier() float64 {
	return config.retryBackoffMultiplier
}

// GetBreakerSettings retrieves circuit breaker thresholds for the named dependency;
// per-dependency child sections override the shared defaults
func (config *Config) GetBreakerSettings(dependency string) BreakerSettings {
	if settings, ok := config.breakerOverrides[dependency]; ok {
		return settings
	}
	return config.defaultBreakerSettings
}

// GetBatchWindowDuration retrieves the hard cap on how long a batch may stay open
func (config *Config) GetBatchWindowDuration() time.Duration {
	return config.batchWindowDuration
}

// GetBatchIdleDuration retrieves the idle gap that closes a batch early
func (config *Config) GetBatchIdleDuration() time.Duration {
	return config.batchIdleDuration
}

// GetBatchSweepInterval retrieves how often open batches are checked for closure
func (config *Config) GetBatchSweepInterval() time.Duration {
	return config.batchSweepInterval
}

// GetBatchStateTTL retrieves the TTL of batch state snapshots; it is kept strictly
// greater than the window duration
func (config *Config) GetBatchStateTTL() time.Duration {
	return config.batchStateTTL
}

// IsStateStoreEnabled checks whether batch state snapshots go to redis
func (config *Config) IsStateStoreEnabled() bool {
	return config.stateStoreEnabled
}

// GetStateStoreRedisURL retrieves the redis connection URL for batch state
func (config *Config) GetStateStoreRedisURL() string {
	return config.stateStoreRedisURL
}

// GetDistributionURL retrieves the pubsub URL connecting pipeline to broadcaster
func (config *Config) GetDistributionURL() string {
	return config.distributionURL
}

// GetMaxDistributionReconnectAttempts retrieves the reconnect budget of the broadcaster listener
func (config *Config) GetMaxDistributionReconnectAttempts() uint {
	return config.maxReconnectAttempts
}

// GetDistributionSuperviseInterval retrieves the cadence of the broadcaster supervisor
func (config *Config) GetDistributionSuperviseInterval() time.Duration {
	return config.superviseInterval
}

// GetSessionSendBufferSize retrieves the per-subscriber outbound message buffer size
func (config *Config) GetSessionSendBufferSize() uint {
	return config.sessionSendBufferSize
}

// GetDetectionWorkerCount retrieves how many workers consume the frame queue
func (config *Config) GetDetectionWorkerCount() uint {
	return config.detectionWorkerCount
}

// GetAnalysisWorkerCount retrieves how many workers consume the batch queue
func (config *Config) GetAnalysisWorkerCount() uint {
	return config.analysisWorkerCount
}

// GetDetectorBaseURL retrieves the base URL of the detection backend
func (config *Config) GetDetectorBaseURL() string {
	return config.detectorBaseURL
}

// GetAnalysisBaseURL retrieves the base URL of the risk analysis backend
func (config *Config) GetAnalysisBaseURL() string {
	return config.analysisBaseURL
}

// GetServiceConnectionTimeout retrieves the HTTP client timeout for backend calls
func (config *Config) GetServiceConnectionTimeout() time.Duration {
	return config.serviceConnectionTimeout
}

// GetServiceUserAgent retrieves the user agent sent to backend services
func (config *Config) GetServiceUserAgent() string {
	return config.serviceUserAgent
}

// GetFastPathConfidenceThreshold retrieves the confidence at or above which a
// detection bypasses batching as a singleton batch
func (config *Config) GetFastPathConfidenceThreshold() float64 {
	return config.fastPathConfidenceThreshold
}

// GetDLQGaugeUpdateInterval returns the interval between DLQ gauge update runs
func (config *Config) GetDLQGaugeUpdateInterval() time.Duration {
	return config.dlqGaugeUpdateInterval
}

// IsRetentionEnabled returns whether old records should be archived and pruned
func (config *Config) IsRetentionEnabled() bool {
	return config.retentionEnabled
}

// GetRetentionPeriod returns how long detections and assessments are kept
func (config *Config) GetRetentionPeriod() time.Duration {
	return config.retentionPeriod
}

// GetRetentionSweepInterval returns the interval between prune runs
func (config *Config) GetRetentionSweepInterval() time.Duration {
	return config.retentionSweepInterval
}

// GetRetentionBatchSize returns the max records loaded per prune pass
func (config *Config) GetRetentionBatchSize() uint {
	return config.retentionBatchSize
}

// GetArchiveExportPath returns the directory archived records are exported to
func (config *Config) GetArchiveExportPath() string {
	return config.archiveExportPath
}

// GetArchiveNodeName returns the node name embedded in archive object names
func (config *Config) GetArchiveNodeName() string {
	return config.archiveNodeName
}

// GetMaxArchiveFileSizeInMB returns the archive object size that triggers rotation
func (config *Config) GetMaxArchiveFileSizeInMB() uint {
	return config.maxArchiveFileSizeInMB
}

// GetAutoConfiguration gets configuration from default config and system defined path chain of
// /etc/sentinel-pipeline/sentinel-pipeline.cfg, {USER_HOME}/.sentinel-pipeline/sentinel-pipeline.cfg,
// sentinel-pipeline.cfg (current dir)
func GetAutoConfiguration() (*Config, error) {
	return GetConfiguration("")
}

// GetConfiguration gets the current state of application configuration
func GetConfiguration(configFilePath string) (*Config, error) {
	configuration := &Config{}
	cfg, err := loadConfiguration(configFilePath)
	if err != nil {
		return EmptyConfigurationForError, err
	}
	setupStorageConfiguration(cfg, configuration)
	setupHTTPConfiguration(cfg, configuration)
	setupLogConfiguration(cfg, configuration)
	setupQueueConfiguration(cfg, configuration)
	setupRetryConfiguration(cfg, configuration)
	setupBreakerConfiguration(cfg, configuration)
	setupBatchConfiguration(cfg, configuration)
	setupStateStoreConfiguration(cfg, configuration)
	setupBroadcastConfiguration(cfg, configuration)
	setupPipelineConfiguration(cfg, configuration)
	setupRetentionConfiguration(cfg, configuration)
	return configuration, nil
}

func setupStorageConfiguration(cfg *ini.File, configuration *Config) {
	dbSection, _ := cfg.GetSection("rdbms")
	dbDialect, _ := dbSection.GetKey("dialect")
	dbConnection, _ := dbSection.GetKey("connection-url")
	dbMaxIdleTimeInSec, _ := dbSection.GetKey("connxn-max-idle-time-seconds")
	dbMaxLifetimeInSec, _ := dbSection.GetKey("connxn-max-lifetime-seconds")
	dbMaxIdleConnections, _ := dbSection.GetKey("max-idle-connxns")
	dbMaxOpenConnections, _ := dbSection.GetKey("max-open-connxns")
	configuration.dbDialect = DBDialect(dbDialect.String())
	configuration.dbConnectionURL = dbConnection.String()
	configuration.dbConnectionMaxIdleTime = time.Duration(dbMaxIdleTimeInSec.MustUint(0)) * time.Second
	configuration.dbConnectionMaxLifetime = time.Duration(dbMaxLifetimeInSec.MustUint(0)) * time.Second
	configuration.dbMaxIdleConnections = uint16(dbMaxIdleConnections.MustUint(10))
	configuration.dbMaxOpenConnections = uint16(dbMaxOpenConnections.MustUint(50))
}

func setupHTTPConfiguration(cfg *ini.File, configuration *Config) {
	httpSection, _ := cfg.GetSection("http")
	httpListener, _ := httpSection.GetKey("listener")
	httpReadTimeout, _ := httpSection.GetKey("read-timeout")
	httpWriteTimeout, _ := httpSection.GetKey("write-timeout")
	configuration.httpListeningAddr = httpListener.String()
	configuration.httpReadTimeout = httpReadTimeout.MustUint(180)
	configuration.httpWriteTimeout = httpWriteTimeout.MustUint(180)
}

func setupLogConfiguration(cfg *ini.File, configuration *Config) {
	logSection, _ := cfg.GetSection("log")
	logFilenameKey, _ := logSection.GetKey("filename")
	logLevelKey, _ := logSection.GetKey("log-level")
	maxFileSizeKey, _ := logSection.GetKey("max-file-size-in-mb")
	maxBackupsKey, _ := logSection.GetKey("max-backups")
	maxAgeKey, _ := logSection.GetKey("max-age-in-days")
	compressEnabledKey, _ := logSection.GetKey("compress-backups")
	configuration.logFilename = logFilenameKey.String()
	switch strings.ToLower(logLevelKey.MustString("debug")) {
	case "fatal":
		configuration.logLevel = Fatal
	case "error":
		configuration.logLevel = Error
	case "info":
		configuration.logLevel = Info
	default:
		configuration.logLevel = Debug
	}
	configuration.maxFileSize = maxFileSizeKey.MustUint(50)
	configuration.maxBackups = maxBackupsKey.MustUint(1)
	configuration.maxAge = maxAgeKey.MustUint(30)
	configuration.compressBackupsEnabled = compressEnabledKey.MustBool(false)
}

func setupQueueConfiguration(cfg *ini.File, configuration *Config) {
	queueSection, _ := cfg.GetSection("queues")
	frameSizeKey, _ := queueSection.GetKey("frame-queue-size")
	framePolicyKey, _ := queueSection.GetKey("frame-overflow-policy")
	batchSizeKey, _ := queueSection.GetKey("batch-queue-size")
	batchPolicyKey, _ := queueSection.GetKey("batch-overflow-policy")
	dequeueTimeoutKey, _ := queueSection.GetKey("dequeue-timeout-in-seconds")
	configuration.frameQueueCapacity = frameSizeKey.MustUint(1000)
	configuration.frameQueueOverflowPolicy = framePolicyKey.MustString("dlq")
	configuration.batchQueueCapacity = batchSizeKey.MustUint(500)
	configuration.batchQueueOverflowPolicy = batchPolicyKey.MustString("reject")
	configuration.dequeueTimeout = time.Duration(dequeueTimeoutKey.MustUint(1)) * time.Second
}

func setupRetryConfiguration(cfg *ini.File, configuration *Config) {
	retrySection, _ := cfg.GetSection("retry")
	maxRetriesKey, _ := retrySection.GetKey("max-retries")
	baseDelayKey, _ := retrySection.GetKey("base-delay-in-millis")
	maxDelayKey, _ := retrySection.GetKey("max-delay-in-millis")
	multiplierKey, _ := retrySection.GetKey("backoff-multiplier")
	configuration.maxRetries = maxRetriesKey.MustUint(5)
	configuration.retryBaseDelay = time.Duration(baseDelayKey.MustUint(200)) * time.Millisecond
	configuration.retryMaxDelay = time.Duration(maxDelayKey.MustUint(30000)) * time.Millisecond
	configuration.retryBackoffMultiplier = multiplierKey.MustFloat64(2.0)
}

func readBreakerSettings(section *ini.Section, defaults BreakerSettings) BreakerSettings {
	failureThresholdKey, _ := section.GetKey("failure-threshold")
	recoveryTimeoutKey, _ := section.GetKey("recovery-timeout-in-seconds")
	halfOpenMaxCallsKey, _ := section.GetKey("half-open-max-calls")
	successThresholdKey, _ := section.GetKey("success-threshold")
	settings := BreakerSettings{
		FailureThreshold: failureThresholdKey.MustUint(uint(defaults.FailureThreshold)),
		HalfOpenMaxCalls: halfOpenMaxCallsKey.MustUint(uint(defaults.HalfOpenMaxCalls)),
		SuccessThreshold: successThresholdKey.MustUint(uint(defaults.SuccessThreshold)),
	}
	defaultRecoverySeconds := uint(defaults.RecoveryTimeout / time.Second)
	settings.RecoveryTimeout = time.Duration(recoveryTimeoutKey.MustUint(defaultRecoverySeconds)) * time.Second
	return settings
}

func setupBreakerConfiguration(cfg *ini.File, configuration *Config) {
	fallback := BreakerSettings{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second, HalfOpenMaxCalls: 2, SuccessThreshold: 2}
	breakerSection, _ := cfg.GetSection(breakerSectionPrefix)
	configuration.defaultBreakerSettings = readBreakerSettings(breakerSection, fallback)
	configuration.breakerOverrides = make(map[string]BreakerSettings)
	for _, childSection := range cfg.ChildSections(breakerSectionPrefix) {
		dependency := strings.TrimPrefix(childSection.Name(), breakerSectionPrefix+".")
		configuration.breakerOverrides[dependency] = readBreakerSettings(childSection, configuration.defaultBreakerSettings)
	}
}

func setupBatchConfiguration(cfg *ini.File, configuration *Config) {
	batchSection, _ := cfg.GetSection("batching")
	windowKey, _ := batchSection.GetKey("window-duration-in-seconds")
	idleKey, _ := batchSection.GetKey("idle-duration-in-seconds")
	sweepKey, _ := batchSection.GetKey("sweep-interval-in-seconds")
	ttlKey, _ := batchSection.GetKey("state-ttl-in-seconds")
	configuration.batchWindowDuration = time.Duration(windowKey.MustUint(60)) * time.Second
	configuration.batchIdleDuration = time.Duration(idleKey.MustUint(30)) * time.Second
	configuration.batchSweepInterval = time.Duration(sweepKey.MustUint(1)) * time.Second
	configuration.batchStateTTL = time.Duration(ttlKey.MustUint(0)) * time.Second
	// state snapshots must outlive the window they describe
	if configuration.batchStateTTL <= configuration.batchWindowDuration {
		configuration.batchStateTTL = configuration.batchWindowDuration + configuration.batchIdleDuration
	}
}

func setupStateStoreConfiguration(cfg *ini.File, configuration *Config) {
	stateSection, _ := cfg.GetSection("state-store")
	enabledKey, _ := stateSection.GetKey("enabled")
	redisURLKey, _ := stateSection.GetKey("redis-url")
	configuration.stateStoreEnabled = enabledKey.MustBool(false)
	configuration.stateStoreRedisURL = redisURLKey.MustString("redis://localhost:6379/0")
}

func setupBroadcastConfiguration(cfg *ini.File, configuration *Config) {
	broadcastSection, _ := cfg.GetSection("broadcast")
	distributionURLKey, _ := broadcastSection.GetKey("distribution-url")
	reconnectKey, _ := broadcastSection.GetKey("max-reconnect-attempts")
	superviseKey, _ := broadcastSection.GetKey("supervise-interval-in-seconds")
	bufferKey, _ := broadcastSection.GetKey("session-send-buffer-size")
	configuration.distributionURL = distributionURLKey.MustString("mem://risk-events")
	configuration.maxReconnectAttempts = reconnectKey.MustUint(3)
	configuration.superviseInterval = time.Duration(superviseKey.MustUint(10)) * time.Second
	configuration.sessionSendBufferSize = bufferKey.MustUint(16)
}

func setupPipelineConfiguration(cfg *ini.File, configuration *Config) {
	pipelineSection, _ := cfg.GetSection("pipeline")
	detectionWorkersKey, _ := pipelineSection.GetKey("detection-workers")
	analysisWorkersKey, _ := pipelineSection.GetKey("analysis-workers")
	detectorURLKey, _ := pipelineSection.GetKey("detector-base-url")
	analysisURLKey, _ := pipelineSection.GetKey("analysis-base-url")
	connectionTimeoutKey, _ := pipelineSection.GetKey("connection-timeout-in-seconds")
	userAgentKey, _ := pipelineSection.GetKey("user-agent")
	fastPathKey, _ := pipelineSection.GetKey("fast-path-confidence-threshold")
	dlqIntervalKey, _ := pipelineSection.GetKey("dlq-gauge-update-interval-seconds")
	configuration.detectionWorkerCount = detectionWorkersKey.MustUint(4)
	configuration.analysisWorkerCount = analysisWorkersKey.MustUint(2)
	configuration.detectorBaseURL = detectorURLKey.MustString("http://localhost:9000")
	configuration.analysisBaseURL = analysisURLKey.MustString("http://localhost:9100")
	configuration.serviceConnectionTimeout = time.Duration(connectionTimeoutKey.MustUint(30)) * time.Second
	configuration.serviceUserAgent = userAgentKey.MustString("Sentinel Pipeline")
	configuration.fastPathConfidenceThreshold = fastPathKey.MustFloat64(0.95)
	configuration.dlqGaugeUpdateInterval = time.Duration(dlqIntervalKey.MustUint(60)) * time.Second
}

func setupRetentionConfiguration(cfg *ini.File, configuration *Config) {
	retentionSection, _ := cfg.GetSection("retention")
	enabledKey, _ := retentionSection.GetKey("enabled")
	periodKey, _ := retentionSection.GetKey("period-in-days")
	sweepKey, _ := retentionSection.GetKey("sweep-interval-in-seconds")
	batchSizeKey, _ := retentionSection.GetKey("batch-size")
	exportPathKey, _ := retentionSection.GetKey("archive-export-path")
	nodeNameKey, _ := retentionSection.GetKey("archive-node-name")
	maxFileSizeKey, _ := retentionSection.GetKey("max-archive-file-size-in-mb")
	configuration.retentionEnabled = enabledKey.MustBool(false)
	configuration.retentionPeriod = time.Duration(periodKey.MustUint(30)) * 24 * time.Hour
	configuration.retentionSweepInterval = time.Duration(sweepKey.MustUint(3600)) * time.Second
	configuration.retentionBatchSize = batchSizeKey.MustUint(500)
	configuration.archiveExportPath = exportPathKey.MustString("/tmp/sentinel-pipeline-archive")
	configuration.archiveNodeName = nodeNameKey.MustString("sentinel")
	configuration.maxArchiveFileSizeInMB = maxFileSizeKey.MustUint(100)
}
