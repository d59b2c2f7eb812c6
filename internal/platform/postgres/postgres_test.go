package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"idledger/internal/platform/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), config.Postgres{})
	assert.ErrorContains(t, err, "DSN is required")
}
