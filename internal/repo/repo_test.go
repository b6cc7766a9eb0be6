package repo

import (
	"testing"
	"time"

	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Init(t.TempDir(), ModeArchive, VerityOff)
	require.NoError(t, err)
	return r
}

// stageCommit builds and stages a minimal commit with a single file "world"
// whose content is content, optionally chained to a parent.
func stageCommit(t *testing.T, r *Repository, txn *Txn, content string, parent *objects.Checksum) objects.Checksum {
	t.Helper()
	f := objects.File{Mode: 0o100644, Content: []byte(content)}
	fCsum, err := txn.StageContent(f.Checksum(), f.Marshal())
	require.NoError(t, err)

	var tree objects.DirTree
	tree.AddFile("world", fCsum)
	treeCsum, err := txn.StageMetadata(objects.KindDirTree, tree.Checksum(), tree.Marshal())
	require.NoError(t, err)

	meta := objects.DirMeta{Mode: 0o40755}
	metaCsum, err := txn.StageMetadata(objects.KindDirMeta, meta.Checksum(), meta.Marshal())
	require.NoError(t, err)

	c := objects.Commit{RootTree: treeCsum, RootMeta: metaCsum, Timestamp: time.Unix(1700000000, 0).UTC(), Subject: "test"}
	if parent != nil {
		c.HasParent = true
		c.Parent = *parent
	}
	cCsum, err := txn.StageMetadata(objects.KindCommit, c.Checksum(), c.Marshal())
	require.NoError(t, err)
	return cCsum
}

func TestStageAndLoadRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	require.False(t, txn.Resuming)

	commitCsum := stageCommit(t, r, txn, "world\n", nil)
	require.NoError(t, txn.Commit())

	require.True(t, r.HasObject(objects.KindCommit, commitCsum))
	obj, err := r.LoadObject(objects.KindCommit, commitCsum)
	require.NoError(t, err)
	require.Equal(t, "test", obj.Commit.Subject)
}

func TestStageMetadataChecksumMismatch(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)

	tree := objects.DirTree{}
	_, err = txn.StageMetadata(objects.KindDirTree, objects.Sum([]byte("wrong")), tree.Marshal())
	require.Error(t, err)
}

func TestSetRefAndListRefs(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	commitCsum := stageCommit(t, r, txn, "world\n", nil)
	txn.SetRef("", "main", &commitCsum)
	require.NoError(t, txn.Commit())

	refs, err := r.ListRefs("")
	require.NoError(t, err)
	require.Equal(t, commitCsum, refs["main"])
}

func TestResolveRevHexAndLocalRef(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	c1 := stageCommit(t, r, txn, "world\n", nil)
	txn.SetRef("", "main", &c1)
	require.NoError(t, txn.Commit())

	got, ok, err := r.ResolveRev("main", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c1, got)

	got, ok, err = r.ResolveRev(c1.String(), false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c1, got)
}

func TestResolveRevCaretParent(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	parent := stageCommit(t, r, txn, "first\n", nil)
	child := stageCommit(t, r, txn, "second\n", &parent)
	txn.SetRef("", "main", &child)
	require.NoError(t, txn.Commit())

	got, ok, err := r.ResolveRev("main^", false)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, parent, got)

	_, ok, err = r.ResolveRev("main^^", true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveRevNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, _, err := r.ResolveRev("nonexistent", false)
	require.Error(t, err)

	_, ok, err := r.ResolveRev("nonexistent", true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPruneRemovesUnreferencedObjects(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	reachable := stageCommit(t, r, txn, "kept\n", nil)
	txn.SetRef("", "main", &reachable)
	require.NoError(t, txn.Commit())

	txn2, err := r.BeginTransaction()
	require.NoError(t, err)
	_ = stageCommit(t, r, txn2, "orphan\n", nil)
	require.NoError(t, txn2.Commit())

	all, err := r.walkObjects()
	require.NoError(t, err)
	countBefore := len(all)

	result, err := r.Prune(-1)
	require.NoError(t, err)
	require.Greater(t, result.Pruned, 0)
	require.Equal(t, countBefore, result.TotalObjects)

	require.True(t, r.HasObject(objects.KindCommit, reachable))
	after, err := r.walkObjects()
	require.NoError(t, err)
	require.Equal(t, countBefore-result.Pruned, len(after))
}

func TestResumingTransactionDetectsLeftoverStaging(t *testing.T) {
	r := newTestRepo(t)
	txn, err := r.BeginTransaction()
	require.NoError(t, err)
	_ = stageCommit(t, r, txn, "leftover\n", nil)
	// Simulate a crash: the transaction handle is simply dropped, leaving
	// its staged files on disk without calling Abort or Commit.
	r.mu.Lock()
	r.txn = nil
	r.mu.Unlock()

	txn2, err := r.BeginTransaction()
	require.NoError(t, err)
	require.True(t, txn2.Resuming)
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir, ModeBareUser, VerityOpportunistic)
	require.NoError(t, err)
	require.Equal(t, ModeBareUser, r.Mode())

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, ModeBareUser, reopened.Mode())
}
