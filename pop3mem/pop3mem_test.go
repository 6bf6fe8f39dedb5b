package pop3mem_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailforge/mailcore/pop3mem"
)

func TestFactoryOpenLocksMailbox(t *testing.T) {
	f := pop3mem.NewFactory()
	f.Deliver("alice", []byte("hello"))

	ctx := context.Background()
	mbox, err := f.Open(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, mbox)

	_, err = f.Open(ctx, "alice")
	assert.Error(t, err, "a second Open of a locked mailbox should fail")

	require.NoError(t, mbox.Close(ctx))

	mbox2, err := f.Open(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, mbox2)
}

func TestDeleteIsPendingUntilCommit(t *testing.T) {
	f := pop3mem.NewFactory()
	f.Deliver("alice", []byte("one"))
	f.Deliver("alice", []byte("two"))

	ctx := context.Background()
	mbox, err := f.Open(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, mbox.Delete(ctx, 1))

	infos, err := mbox.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.True(t, infos[0].Deleted)
	assert.False(t, infos[1].Deleted)

	_, err = mbox.Retrieve(ctx, 1)
	assert.Error(t, err, "a message marked for deletion should not be retrievable")

	require.NoError(t, mbox.CommitDeletes(ctx))
	require.NoError(t, mbox.Close(ctx))

	mbox2, err := f.Open(ctx, "alice")
	require.NoError(t, err)
	infos2, err := mbox2.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos2, 1, "committed delete should have removed the message permanently")
}

func TestRollbackUndoesPendingDeletes(t *testing.T) {
	f := pop3mem.NewFactory()
	f.Deliver("bob", []byte("only message"))

	ctx := context.Background()
	mbox, err := f.Open(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, mbox.Delete(ctx, 1))
	require.NoError(t, mbox.Rollback(ctx))

	rc, err := mbox.Retrieve(ctx, 1)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "only message", string(data))
}

func TestUidlIsStableAndContentAddressed(t *testing.T) {
	f := pop3mem.NewFactory()
	f.Deliver("carol", []byte("same content"))
	f.Deliver("carol", []byte("same content"))

	ctx := context.Background()
	mbox, err := f.Open(ctx, "carol")
	require.NoError(t, err)

	u1, err := mbox.Uidl(ctx, 1)
	require.NoError(t, err)
	u2, err := mbox.Uidl(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, u1, u2, "identical message bytes should produce identical UIDLs")
}
