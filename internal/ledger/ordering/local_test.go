package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/internal/ledger/models"
)

func TestLocalDeliversInSubmissionOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fixed := time.Unix(1700000000, 0)
	l := NewLocal(8, WithClock(func() time.Time { return fixed }))
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, l.Submit(ctx, &models.Txn{Type: models.TypeNym, Identifier: "a", ReqID: i}))
	}

	var got []Ordered
	err := l.Run(ctx, func(_ context.Context, o Ordered) error {
		got = append(got, o)
		if len(got) == 3 {
			return l.Close()
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, o := range got {
		assert.Equal(t, int64(i+1), o.Txn.ReqID)
		assert.Equal(t, int64(i+1), o.Position)
		assert.Equal(t, fixed, o.PPTime)
	}
}

func TestLocalSubmitAfterClose(t *testing.T) {
	l := NewLocal(1)
	require.NoError(t, l.Close())
	err := l.Submit(context.Background(), &models.Txn{Type: models.TypeNym})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLocalSubmitCopiesTransaction(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l := NewLocal(1)
	txn := &models.Txn{Type: models.TypeNym, Identifier: "a", ReqID: 1, Dest: "before"}
	require.NoError(t, l.Submit(ctx, txn))
	txn.Dest = "after"

	err := l.Run(ctx, func(_ context.Context, o Ordered) error {
		assert.Equal(t, "before", o.Txn.Dest)
		return l.Close()
	})
	require.NoError(t, err)
}
