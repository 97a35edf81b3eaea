package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/guestpilot/internal/config"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/internal/store/airtable"
	"github.com/wolfman30/guestpilot/internal/store/dynamo"
	"github.com/wolfman30/guestpilot/internal/store/memory"
	"github.com/wolfman30/guestpilot/internal/store/postgres"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

// Backend is an opened record store. Store is wrapped with timeouts,
// tracing and error classification. Pool is set only for the postgres
// backend so other tables can share it.
type Backend struct {
	Store store.Store
	Pool  *pgxpool.Pool
	Close func()
}

// BuildStore opens the configured record store backend.
func BuildStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (Backend, error) {
	st, pool, closeFn, err := openBackend(ctx, cfg, awsCfg, logger)
	if err != nil {
		return Backend{}, err
	}
	return Backend{
		Store: store.Instrument(st, store.Options{Timeout: cfg.StoreTimeout}),
		Pool:  pool,
		Close: closeFn,
	}, nil
}

func openBackend(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (store.Store, *pgxpool.Pool, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.StoreBackend)) {
	case "", "memory":
		logger.Warn("using in-memory record store; data is lost on restart")
		return memory.New(), nil, noop, nil

	case "dynamo", "dynamodb":
		if cfg.DynamoConversationsTable == "" || cfg.DynamoPropertiesTable == "" {
			return nil, nil, nil, fmt.Errorf("bootstrap: dynamo backend requires DYNAMO_CONVERSATIONS_TABLE and DYNAMO_PROPERTIES_TABLE")
		}
		logger.Info("using dynamodb record store",
			"conversations_table", cfg.DynamoConversationsTable,
			"properties_table", cfg.DynamoPropertiesTable,
		)
		client := dynamodb.NewFromConfig(awsCfg)
		return dynamo.New(client, cfg.DynamoConversationsTable, cfg.DynamoPropertiesTable, logger), nil, noop, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, nil, fmt.Errorf("bootstrap: postgres backend requires DATABASE_URL")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		logger.Info("using postgres record store")
		return postgres.New(pool, logger), pool, pool.Close, nil

	case "airtable":
		if cfg.AirtableAPIKey == "" || cfg.AirtableBaseID == "" {
			return nil, nil, nil, fmt.Errorf("bootstrap: airtable backend requires AIRTABLE_API_KEY and AIRTABLE_BASE_ID")
		}
		client := airtable.NewClient(cfg.AirtableAPIKey, cfg.AirtableBaseID)
		if cfg.AirtableBaseURL != "" {
			client.SetAPIBase(cfg.AirtableBaseURL)
		}
		logger.Info("using airtable record store", "base_id", cfg.AirtableBaseID)
		return airtable.New(client, logger), nil, noop, nil

	default:
		return nil, nil, nil, fmt.Errorf("bootstrap: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
