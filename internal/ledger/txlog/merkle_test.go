package txlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idledger/internal/ledger/models"
	"idledger/pkg/platform/sentinel"
)

func TestEmptyRootIsHashOfNothing(t *testing.T) {
	root, err := NewTree(nil).Root(0)
	require.NoError(t, err)
	want := sha256.Sum256(nil)
	assert.Equal(t, hex.EncodeToString(want[:]), EncodeHash(root))
}

func TestTwoLeafRoot(t *testing.T) {
	tree := NewTree(nil)
	tree.Append([]byte("a"))
	tree.Append([]byte("b"))
	root, err := tree.Root(2)
	require.NoError(t, err)
	assert.Equal(t, nodeHash(LeafHash([]byte("a")), LeafHash([]byte("b"))), root)
}

func TestInclusionProofsVerifyForEveryLeaf(t *testing.T) {
	tree := NewTree(nil)
	for i := 0; i < 13; i++ {
		tree.Append([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	for size := int64(1); size <= tree.Size(); size++ {
		root, err := tree.Root(size)
		require.NoError(t, err)
		for index := int64(0); index < size; index++ {
			path, err := tree.AuditPath(index, size)
			require.NoError(t, err)
			leaf := LeafHash([]byte(fmt.Sprintf("leaf-%d", index)))
			assert.NoError(t, VerifyInclusion(leaf, index, size, path, root), "index %d size %d", index, size)
		}
	}
}

func TestInclusionProofRejectsTampering(t *testing.T) {
	tree := NewTree(nil)
	for i := 0; i < 6; i++ {
		tree.Append([]byte{byte(i)})
	}
	root, err := tree.Root(6)
	require.NoError(t, err)
	path, err := tree.AuditPath(3, 6)
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyInclusion(LeafHash([]byte{9}), 3, 6, path, root), ErrInvalidProof)
	assert.ErrorIs(t, VerifyInclusion(LeafHash([]byte{3}), 2, 6, path, root), ErrInvalidProof)
	assert.ErrorIs(t, VerifyInclusion(LeafHash([]byte{3}), 3, 6, path[:1], root), ErrInvalidProof)
}

func TestInMemoryLogAppend(t *testing.T) {
	ctx := context.Background()
	log := NewInMemoryLog()

	first, err := log.Append(ctx, "t1", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SeqNo)

	second, err := log.Append(ctx, "t2", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SeqNo)
	assert.NotEqual(t, first.RootHash, second.RootHash)

	dup, err := log.Append(ctx, "t1", []byte("one"))
	require.True(t, errors.Is(err, ErrDuplicate))
	assert.True(t, errors.Is(err, sentinel.ErrAlreadyUsed))
	assert.Equal(t, int64(1), dup.SeqNo)

	size, err := log.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	e, err := log.FindByTxnID(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), e.Payload)

	_, err = log.Get(ctx, 3)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	again, err := log.Receipt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	_, err = log.Receipt(ctx, 0)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestVerifyReply(t *testing.T) {
	ctx := context.Background()
	log := NewInMemoryLog()
	for i := int64(1); i <= 4; i++ {
		txn := &models.Txn{Type: models.TypeAttrib, Identifier: "id", ReqID: i, Hash: fmt.Sprintf("%064d", i), TxnTime: 1700000000}
		txn.TxnID = txn.ComputeTxnID()
		payload, err := EncodeTxn(txn)
		require.NoError(t, err)
		rcpt, err := log.Append(ctx, txn.TxnID, payload)
		require.NoError(t, err)

		result := txn.Clone()
		result.SeqNo = rcpt.SeqNo
		reply := &models.Reply{Type: txn.Type, Identifier: "id", ReqID: i, Result: result,
			SeqNo: rcpt.SeqNo, RootHash: rcpt.RootHash, AuditPath: rcpt.AuditPath, TreeSize: rcpt.TreeSize}
		require.NoError(t, VerifyReply(reply))

		reply.Result.Hash = fmt.Sprintf("%064d", 99)
		assert.ErrorIs(t, VerifyReply(reply), ErrInvalidProof)
	}
}
