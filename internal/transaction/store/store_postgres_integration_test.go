//go:build integration

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pushgate/pkg/domain"
	"pushgate/pkg/testutil/containers"
)

type postgresStoreSuite struct {
	storeContract
	postgres *containers.PostgresContainer
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ps := &postgresStoreSuite{}
	ps.newStore = func() Store {
		if ps.postgres == nil {
			ps.postgres = containers.GetManager().GetPostgres(ps.T())
		}
		ps.Require().NoError(ps.postgres.TruncateTables(context.Background(), "login_transactions", "accounts"))
		return NewPostgres(ps.postgres.DB)
	}
	// login_transactions.account_id references accounts.
	ps.seedAccount = func(id domain.AccountID) {
		_, err := ps.postgres.DB.ExecContext(context.Background(), `
			INSERT INTO accounts (id, email, push_token, device_name, enrolled_at, updated_at)
			VALUES ($1, $2, 'token', '', $3, $3)`,
			id.String(), id.String()+"@example.com", time.Now())
		ps.Require().NoError(err)
	}
	ps.unreachable = func() Store {
		db, err := sql.Open("postgres", unreachableDSN)
		ps.Require().NoError(err)
		ps.T().Cleanup(func() { _ = db.Close() })
		return NewPostgres(db)
	}
	suite.Run(t, ps)
}
