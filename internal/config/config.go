package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (optional; empty URL disables the queue path)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Inference bridge (optional; empty URL disables AI generation)
	InferenceURL     string
	InferenceTimeout time.Duration

	// Plan worker
	PlanBatchSize    int
	PlanPollInterval time.Duration
	PlanMaxRetries   int

	// Backend selection
	DataBackend string

	// StrictGoalDates requires a future target date on goal updates, not
	// only on creation.
	StrictGoalDates bool
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/budgetd.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budgetd"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "plan_requests"),

		InferenceURL:     getEnv("INFERENCE_URL", ""),
		InferenceTimeout: getEnvDuration("INFERENCE_TIMEOUT", 20*time.Second),

		PlanBatchSize:    getEnvInt("PLAN_BATCH_SIZE", 10),
		PlanPollInterval: getEnvDuration("PLAN_POLL_INTERVAL", 15*time.Second),
		PlanMaxRetries:   getEnvInt("PLAN_MAX_RETRIES", 3),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		StrictGoalDates: getEnvBool("STRICT_GOAL_DATES", true),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}

		// The queue path needs durable plan requests, which live in SQLite.
		if c.DataBackend != "sqlite" {
			errors = append(errors, "AMQP requires the sqlite backend for durable plan requests")
		}
	}

	if c.InferenceURL != "" {
		if parsedURL, err := url.Parse(c.InferenceURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid inference URL '%s': %v", c.InferenceURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid inference URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	if c.InferenceTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid inference timeout %v: must be at least 1 second", c.InferenceTimeout))
	} else if c.InferenceTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid inference timeout %v: must be at most 5 minutes", c.InferenceTimeout))
	}

	if c.PlanBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid plan batch size %d: must be at least 1", c.PlanBatchSize))
	} else if c.PlanBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid plan batch size %d: must be at most 1000", c.PlanBatchSize))
	}

	if c.PlanPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid plan poll interval %v: must be at least 1 second", c.PlanPollInterval))
	} else if c.PlanPollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid plan poll interval %v: must be at most 24 hours", c.PlanPollInterval))
	}

	if c.PlanMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid plan max retries %d: must be at least 1", c.PlanMaxRetries))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
