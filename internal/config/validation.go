package config

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Gateway.Timeout.Duration <= 0 {
		c.Gateway.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Verification.TokenTTL.Duration <= 0 {
		c.Verification.TokenTTL = Duration{Duration: 5 * time.Minute}
	}
	if c.Storage.TransactionsTable == "" {
		c.Storage.TransactionsTable = "transactions"
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = "log"
	}

	// The audit mongo sink reuses the ledger connection settings unless
	// configured separately.
	if c.Audit.Sink == "mongodb" {
		if c.Audit.MongoDBURL == "" {
			c.Audit.MongoDBURL = c.Storage.MongoDBURL
		}
		if c.Audit.MongoDBDatabase == "" {
			c.Audit.MongoDBDatabase = c.Storage.MongoDBDatabase
		}
	}

	return c.validate()
}

// validate checks configuration consistency before startup.
func (c *Config) validate() error {
	if c.Gateway.BaseURL != "" {
		if _, err := url.Parse(c.Gateway.BaseURL); err != nil {
			return fmt.Errorf("gateway.base_url invalid: %w", err)
		}
	}
	if c.Gateway.KeySecret == "" {
		return fmt.Errorf("gateway.key_secret is required (set COURSEPAY_GATEWAY_KEY_SECRET)")
	}

	switch c.Storage.Backend {
	case "", "memory":
		// Memory backend loses the idempotency ledger on restart.
		// Acceptable for development only; validated lazily so tests stay simple.
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("storage.backend=postgres requires storage.postgres_url")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			return fmt.Errorf("storage.backend=mongodb requires storage.mongodb_url")
		}
		if c.Storage.MongoDBDatabase == "" {
			return fmt.Errorf("storage.backend=mongodb requires storage.mongodb_database")
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	switch c.Audit.Sink {
	case "log":
	case "kafka":
		if len(c.Audit.KafkaBrokers) == 0 {
			return fmt.Errorf("audit.sink=kafka requires audit.kafka_brokers")
		}
	case "mongodb":
		if c.Audit.MongoDBURL == "" {
			return fmt.Errorf("audit.sink=mongodb requires audit.mongodb_url")
		}
		if c.Audit.MongoDBDatabase == "" {
			return fmt.Errorf("audit.sink=mongodb requires audit.mongodb_database")
		}
	default:
		return fmt.Errorf("unknown audit sink: %s", c.Audit.Sink)
	}

	for id, course := range c.Catalog.Courses {
		if course.Amount <= 0 {
			return fmt.Errorf("catalog course %q: amount must be positive", id)
		}
		if course.Currency == "" {
			return fmt.Errorf("catalog course %q: currency is required", id)
		}
	}

	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database handle.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := pool.ConnMaxLifetime.Duration
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}
