package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"sage-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,PATCH,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL (jobs, matches, rules, entity records, dataset records)
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"sage"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseReconnectRetryCount   int           `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (per-tenant job concurrency slots)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka Consumer (dataset record intake)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"dataset-records"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"sage-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer (job lifecycle + review events)
	KafkaOutputTopic  string `env:"KAFKA_OUTPUT_TOPIC" env-default:"reconciliation-events"`
	KafkaBatchSize    int    `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int    `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Model store
	ModelStoreBaseURL         string        `env:"MODEL_STORE_BASE_URL" env-default:""`
	ModelStoreTimeout         time.Duration `env:"MODEL_STORE_TIMEOUT" env-default:"30s"`
	ModelRefreshInterval      time.Duration `env:"MODEL_REFRESH_INTERVAL" env-default:"5m"`
	ModelLoadMaxAttempts      int           `env:"MODEL_LOAD_MAX_ATTEMPTS" env-default:"3"`
	PairwiseModelName         string        `env:"PAIRWISE_MODEL_NAME" env-default:"pairwise-similarity"`
	DedupMinModelScore        float64       `env:"DEDUP_MIN_MODEL_SCORE" env-default:"0.4"`
	DedupCandidateSearchLimit int           `env:"DEDUP_CANDIDATE_SEARCH_LIMIT" env-default:"20"`

	// Reconciliation processing
	JobWorkerCount           int           `env:"JOB_WORKER_COUNT" env-default:"4"`
	JobMaxAttempts           int           `env:"JOB_MAX_ATTEMPTS" env-default:"3"`
	JobRetryBaseDelay        time.Duration `env:"JOB_RETRY_BASE_DELAY" env-default:"500ms"`
	MaxConcurrentJobsPerTenant int         `env:"MAX_CONCURRENT_JOBS_PER_TENANT" env-default:"2"`
	MaxProcessingTime        time.Duration `env:"MAX_PROCESSING_TIME" env-default:"30m"`
	ScoreWorkerCount         int           `env:"SCORE_WORKER_COUNT" env-default:"8"`
	MatchBatchSize           int           `env:"MATCH_BATCH_SIZE" env-default:"100"`

	// Default classification thresholds, overridable per request
	ExactThreshold   float64 `env:"EXACT_THRESHOLD" env-default:"0.95"`
	FuzzyThreshold   float64 `env:"FUZZY_THRESHOLD" env-default:"0.85"`
	PartialThreshold float64 `env:"PARTIAL_THRESHOLD" env-default:"0.65"`
	ReviewFloor      float64 `env:"REVIEW_FLOOR" env-default:"0.4"`
}
