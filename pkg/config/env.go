package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvHoldDuration      = "HOLD_DURATION"
	EnvExtendHoldMinutes = "EXTEND_HOLD_MINUTES"
	EnvMaxHoldWindow     = "MAX_HOLD_WINDOW"
	EnvSweepInterval     = "SWEEP_INTERVAL"
	EnvSweepBatchSize    = "SWEEP_BATCH_SIZE"
	EnvLedgerMaxRetries  = "LEDGER_MAX_RETRIES"
	EnvCommissionRate    = "COMMISSION_RATE"

	EnvKafkaBrokers       = "KAFKA_BROKERS"
	EnvKafkaGroupID       = "KAFKA_GROUP_ID"
	EnvBookingEventsTopic = "BOOKING_EVENTS_TOPIC"
	EnvPaymentEventsTopic = "PAYMENT_EVENTS_TOPIC"
)
