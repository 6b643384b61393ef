package commands

import (
	"fmt"
	"os"

	"github.com/go-sourced/sourced/adapters"
	"github.com/go-sourced/sourced/adapters/postgres"
	"github.com/go-sourced/sourced/cli/config"
)

// openAdapter builds an event store adapter from the config file and flags.
// Flags win over the config file; the config file wins over defaults.
func openAdapter(configPath, driver, url string) (adapters.EventStoreAdapter, error) {
	cfg := config.DefaultConfig()

	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = loaded
	} else if config.Exists(".") {
		loaded, err := config.Load(".")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if driver != "" {
		cfg.Store.Driver = driver
	}
	if url != "" {
		cfg.Store.URL = url
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = os.Getenv("DATABASE_URL")
	}

	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.URL == "" {
			return nil, fmt.Errorf("postgres driver requires a connection URL (--url, sourced.yaml, or DATABASE_URL)")
		}
		opts := []postgres.Option{}
		if cfg.Store.Schema != "" {
			opts = append(opts, postgres.WithSchema(cfg.Store.Schema))
		}
		return postgres.NewAdapter(cfg.Store.URL, opts...)
	case "memory":
		return nil, fmt.Errorf("memory driver holds no data between runs; point sourcedctl at a postgres store")
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Store.Driver)
	}
}

// queryAdapter asserts the stream-listing capability.
func queryAdapter(a adapters.EventStoreAdapter) (adapters.StreamQueryAdapter, error) {
	q, ok := a.(adapters.StreamQueryAdapter)
	if !ok {
		return nil, fmt.Errorf("adapter does not support stream listing")
	}
	return q, nil
}
