// Package config содержит логику чтения конфигурации сервиса расчётов шопперов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress              string        `env:"RUN_ADDRESS"`
	GraphQLURL              string        `env:"GRAPHQL_URL"`
	GraphQLAdminSecret      string        `env:"GRAPHQL_ADMIN_SECRET"`
	JWTSecret               string        `env:"JWT_SECRET"`
	InvoiceBackfillInterval time.Duration `env:"INVOICE_BACKFILL_INTERVAL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envGraphQLURL := cfg.GraphQLURL
	envAdminSecret := cfg.GraphQLAdminSecret
	envJWTSecret := cfg.JWTSecret
	envBackfillInterval := cfg.InvoiceBackfillInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.GraphQLURL, "g", "", "graphql gateway endpoint URL")
	flag.StringVar(&cfg.GraphQLAdminSecret, "s", "", "graphql gateway admin secret")
	flag.StringVar(&cfg.JWTSecret, "j", "", "JWT secret of the session provider")
	flag.DurationVar(&cfg.InvoiceBackfillInterval, "i", time.Minute, "invoice backfill interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envGraphQLURL != "" {
		cfg.GraphQLURL = envGraphQLURL
	}
	if envAdminSecret != "" {
		cfg.GraphQLAdminSecret = envAdminSecret
	}
	if envJWTSecret != "" {
		cfg.JWTSecret = envJWTSecret
	}
	if envBackfillInterval != 0 {
		cfg.InvoiceBackfillInterval = envBackfillInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	// Без шлюза сервис бесполезен: все данные живут во внешней системе.
	if cfg.GraphQLURL == "" {
		return nil, errors.New("graphql gateway URL is required")
	}

	return cfg, nil
}
