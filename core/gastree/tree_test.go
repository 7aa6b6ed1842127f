package gastree

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gearbox/corevm/common"
	"github.com/gearbox/corevm/storage"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	db, err := storage.OpenLevelDBMem()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	tr, err := NewTree(storage.NewStore(db), 1024)
	require.NoError(t, err)
	return tr
}

func u256(v uint64) uint256.Int { return *uint256.NewInt(v) }

func TestCutPreservesExternalIdentity(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("R"))
	ext := common.BytesToHash([]byte("A"))
	child := common.BytesToHash([]byte("C"))

	require.NoError(t, tr.Create(root, ext, u256(100), 1, false))
	require.NoError(t, tr.Cut(root, child, u256(30)))

	c, ok, err := tr.Get(child)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, KindCut, c.Kind)
	require.Equal(t, uint64(30), c.Value.Uint64())
	require.Equal(t, ext, c.ExternalID)

	r, ok, err := tr.Get(root)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(70), r.Value.Uint64())
}

func TestSplitWithValueTransfersBalance(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("root"))
	ext := common.BytesToHash([]byte("ext"))
	child := common.BytesToHash([]byte("child"))

	require.NoError(t, tr.Create(root, ext, u256(500), 1, false))
	require.NoError(t, tr.SplitWithValue(root, child, u256(200)))

	r, _, err := tr.Get(root)
	require.NoError(t, err)
	require.Equal(t, uint64(300), r.Value.Uint64())
	require.Equal(t, uint32(1), r.Refs.Spec)

	c, _, err := tr.Get(child)
	require.NoError(t, err)
	require.Equal(t, KindSpecifiedLocal, c.Kind)
	require.Equal(t, uint64(200), c.Value.Uint64())
}

func TestConsumeCascadesWhenNonPatron(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("root2"))
	ext := common.BytesToHash([]byte("ext2"))
	child := common.BytesToHash([]byte("child2"))

	require.NoError(t, tr.Create(root, ext, u256(500), 1, false))
	require.NoError(t, tr.SplitWithValue(root, child, u256(100)))
	require.NoError(t, tr.Consume(child))

	_, ok, err := tr.Get(child)
	require.NoError(t, err)
	require.False(t, ok, "non-patron child must be deleted on consume")

	r, _, err := tr.Get(root)
	require.NoError(t, err)
	require.Equal(t, uint64(500), r.Value.Uint64(), "value returns to parent on collapse")
	require.Equal(t, uint32(0), r.Refs.Spec)
}

func TestSpendDeductsFromNearestBalanceHolder(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("root3"))
	ext := common.BytesToHash([]byte("ext3"))
	unspec := common.BytesToHash([]byte("unspec3"))

	require.NoError(t, tr.Create(root, ext, u256(1000), 1, false))
	require.NoError(t, tr.Split(root, unspec))
	require.NoError(t, tr.Spend(unspec, u256(40)))

	r, _, err := tr.Get(root)
	require.NoError(t, err)
	require.Equal(t, uint64(960), r.Value.Uint64())
}

func TestLockUnlockRoundTrip(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("root4"))
	ext := common.BytesToHash([]byte("ext4"))
	require.NoError(t, tr.Create(root, ext, u256(100), 1, false))

	require.NoError(t, tr.Lock(root, 1, u256(25)))
	r, _, _ := tr.Get(root)
	require.Equal(t, uint64(75), r.Value.Uint64())
	require.Equal(t, uint64(25), r.LockArr[1].Uint64())

	require.NoError(t, tr.Unlock(root, 1, u256(25)))
	r, _, _ = tr.Get(root)
	require.Equal(t, uint64(100), r.Value.Uint64())
	require.Equal(t, uint64(0), r.LockArr[1].Uint64())
}

func TestCreateRejectsDuplicateRoot(t *testing.T) {
	tr := newTestTree(t)
	root := common.BytesToHash([]byte("dup"))
	ext := common.BytesToHash([]byte("ext"))
	require.NoError(t, tr.Create(root, ext, u256(1), 1, false))
	require.Error(t, tr.Create(root, ext, u256(1), 1, false))
}
