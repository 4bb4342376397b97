//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/meridianfi/meridian/internal/model"
)

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger   *zap.Logger
	testDSN      string
	testRedisURL string
	testPool     *pgxpool.Pool
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("meridian_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// seedAccounts inserts a small linked-account fixture for userID.
func seedAccounts(ctx context.Context, userID string) error {
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO accounts (id, user_id, name, type, balance, interest_rate, tax_advantaged)
		  VALUES (gen_random_uuid(), $1, 'Checking', 'cash', 12000, NULL, false)`, []any{userID}},
		{`INSERT INTO accounts (id, user_id, name, type, balance, interest_rate, tax_advantaged)
		  VALUES (gen_random_uuid(), $1, '401k', 'investment', 80000, NULL, true)`, []any{userID}},
		{`INSERT INTO accounts (id, user_id, name, type, balance, interest_rate, tax_advantaged)
		  VALUES (gen_random_uuid(), $1, 'Credit card', 'debt', 3000, 21.5, false)`, []any{userID}},
		{`INSERT INTO holdings (id, user_id, symbol, name, asset_type, quantity, value)
		  VALUES (gen_random_uuid(), $1, 'VTI', 'Total Market', 'etf', 200, 50000)`, []any{userID}},
		{`INSERT INTO holdings (id, user_id, symbol, name, asset_type, quantity, value)
		  VALUES (gen_random_uuid(), $1, 'BND', 'Bond Fund', 'etf', 400, 30000)`, []any{userID}},
		{`INSERT INTO sync_status (user_id, provider, last_sync) VALUES ($1, 'plaid', $2)
		  ON CONFLICT (user_id) DO UPDATE SET last_sync = $2`, []any{userID, time.Now().Add(-time.Hour)}},
	}
	for _, st := range stmts {
		if _, err := testPool.Exec(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

// scriptedGateway replays fixed model responses in order, repeating the
// last one. It stands in for a live model so runs are deterministic.
type scriptedGateway struct {
	responses []*model.InvokeResponse
	calls     int
}

func (g *scriptedGateway) Invoke(ctx context.Context, req *model.InvokeRequest) (*model.InvokeResponse, error) {
	idx := g.calls
	g.calls++
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx], nil
}
