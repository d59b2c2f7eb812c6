//go:build integration

package store_test

import (
	"context"
	"testing"

	"idledger/internal/ledger/graph"
	"idledger/internal/ledger/graph/store"
	"idledger/pkg/testutil/containers"

	"github.com/stretchr/testify/suite"
)

func TestPostgresGraphSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	pgStore := store.NewPostgres(pg.DB)
	if err := pgStore.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	suite.Run(t, &GraphSuite{newStore: func() graph.Store {
		err := pg.TruncateTables(context.Background(),
			"graph_edges", "graph_issuer_keys", "graph_cred_defs", "graph_attributes", "graph_nyms")
		if err != nil {
			t.Fatalf("truncate graph tables: %v", err)
		}
		return pgStore
	}})
}
