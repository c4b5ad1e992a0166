package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "busway"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultHoldDuration      = 15 * time.Minute
	DefaultExtendHoldMinutes = 15
	DefaultMaxHoldWindow     = 60 * time.Minute
	DefaultSweepInterval     = 30 * time.Second
	DefaultSweepBatchSize    = 100
	DefaultLedgerMaxRetries  = 3
	DefaultCommissionRate    = 0.15

	DefaultKafkaGroupID       = "busway-inventory"
	DefaultBookingEventsTopic = "booking-events"
	DefaultPaymentEventsTopic = "payment-events"

	DefaultPaginationLimit = 100
)
