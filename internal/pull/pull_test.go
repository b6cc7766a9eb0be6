package pull

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/objects"
	"github.com/coreos/ostree-engine/internal/ostreeerr"
	"github.com/coreos/ostree-engine/internal/repo"
	"github.com/stretchr/testify/require"
)

// countObjects walks a repository's objects directory and returns how many
// regular files (of any kind) it contains.
func countObjects(t *testing.T, repoDir string) int {
	t.Helper()
	count := 0
	err := filepath.Walk(filepath.Join(repoDir, "objects"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

// seedRemote builds a small archive-mode repository on disk with a single
// commit "main" -> tree{world: "hello\n"}, returning its checksum.
func seedRemote(t *testing.T, dir string) objects.Checksum {
	t.Helper()
	r, err := repo.Init(dir, repo.ModeArchive, repo.VerityOff)
	require.NoError(t, err)

	txn, err := r.BeginTransaction()
	require.NoError(t, err)

	f := objects.File{Mode: 0o100644, Content: []byte("hello\n")}
	fCsum, err := txn.StageContent(f.Checksum(), f.Marshal())
	require.NoError(t, err)

	var tree objects.DirTree
	tree.AddFile("world", fCsum)
	treeCsum, err := txn.StageMetadata(objects.KindDirTree, tree.Checksum(), tree.Marshal())
	require.NoError(t, err)

	meta := objects.DirMeta{Mode: 0o40755}
	metaCsum, err := txn.StageMetadata(objects.KindDirMeta, meta.Checksum(), meta.Marshal())
	require.NoError(t, err)

	c := objects.Commit{RootTree: treeCsum, RootMeta: metaCsum, Timestamp: time.Unix(1700000000, 0).UTC(), Subject: "seed"}
	cCsum, err := txn.StageMetadata(objects.KindCommit, c.Checksum(), c.Marshal())
	require.NoError(t, err)

	csum := cCsum
	txn.SetRef("", "main", &csum)
	require.NoError(t, txn.Commit())
	return cCsum
}

func TestPullFetchesFullClosure(t *testing.T) {
	remoteDir := t.TempDir()
	expectedCommit := seedRemote(t, remoteDir)

	srv := httptest.NewServer(http.FileServer(http.Dir(remoteDir)))
	defer srv.Close()

	localDir := t.TempDir()
	localRepo, err := repo.Init(localDir, repo.ModeArchive, repo.VerityOff)
	require.NoError(t, err)

	engine := New(localRepo, fetcher.New())
	report, err := engine.Pull(context.Background(), Remote{Name: "origin", Mirrors: []string{srv.URL}}, []string{"main"}, Flags{})
	require.NoError(t, err)

	require.Equal(t, 3, report.MetadataFetched) // commit + dirtree + dirmeta
	require.Equal(t, 1, report.ContentFetched)
	require.Equal(t, expectedCommit.String(), report.UpdatedRefs["main"])

	require.True(t, localRepo.HasObject(objects.KindCommit, expectedCommit))
	refs, err := localRepo.ListRefs("")
	require.NoError(t, err)
	require.Equal(t, expectedCommit, refs["origin:main"])
}

func TestPullIsResumable(t *testing.T) {
	remoteDir := t.TempDir()
	expectedCommit := seedRemote(t, remoteDir)
	srv := httptest.NewServer(http.FileServer(http.Dir(remoteDir)))
	defer srv.Close()

	localDir := t.TempDir()
	localRepo, err := repo.Init(localDir, repo.ModeArchive, repo.VerityOff)
	require.NoError(t, err)
	engine := New(localRepo, fetcher.New())

	_, err = engine.Pull(context.Background(), Remote{Name: "origin", Mirrors: []string{srv.URL}}, []string{"main"}, Flags{})
	require.NoError(t, err)

	report, err := engine.Pull(context.Background(), Remote{Name: "origin", Mirrors: []string{srv.URL}}, []string{"main"}, Flags{})
	require.NoError(t, err)
	require.Equal(t, 0, report.MetadataFetched, "second pull finds everything already local")
	require.Equal(t, 0, report.ContentFetched)
	require.Empty(t, report.UpdatedRefs, "ref already at target: No changes")
	_ = expectedCommit
}

func TestPullRejectsNonArchiveRemote(t *testing.T) {
	remoteDir := t.TempDir()
	_, err := repo.Init(remoteDir, repo.ModeBare, repo.VerityOff)
	require.NoError(t, err)

	srv := httptest.NewServer(http.FileServer(http.Dir(remoteDir)))
	defer srv.Close()

	localDir := t.TempDir()
	localRepo, err := repo.Init(localDir, repo.ModeArchive, repo.VerityOff)
	require.NoError(t, err)
	engine := New(localRepo, fetcher.New())

	_, err = engine.Pull(context.Background(), Remote{Name: "origin", Mirrors: []string{srv.URL}}, []string{"main"}, Flags{})
	require.Error(t, err)
}

// TestPullAbortsWholeTransactionOnCorruptObject exercises a corrupt server
// object: a byte flipped in the remote's commit object after seeding must
// fail the whole pull as Corrupt, leave no ref updated, and leave the local
// repository's object count unchanged, rather than partially applying
// whatever was staged before the corruption was detected.
func TestPullAbortsWholeTransactionOnCorruptObject(t *testing.T) {
	remoteDir := t.TempDir()
	expectedCommit := seedRemote(t, remoteDir)

	commitPath := filepath.Join(remoteDir, repo.ObjectRelPath(objects.KindCommit, expectedCommit, true))
	raw, err := os.ReadFile(commitPath)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	raw[0] ^= 0xff
	require.NoError(t, os.WriteFile(commitPath, raw, 0o644))

	srv := httptest.NewServer(http.FileServer(http.Dir(remoteDir)))
	defer srv.Close()

	localDir := t.TempDir()
	localRepo, err := repo.Init(localDir, repo.ModeArchive, repo.VerityOff)
	require.NoError(t, err)
	engine := New(localRepo, fetcher.New())

	before := countObjects(t, localDir)

	_, err = engine.Pull(context.Background(), Remote{Name: "origin", Mirrors: []string{srv.URL}}, []string{"main"}, Flags{})
	require.Error(t, err)
	require.True(t, ostreeerr.Is(err, ostreeerr.ErrCorrupt))

	require.False(t, localRepo.HasObject(objects.KindCommit, expectedCommit))
	refs, err := localRepo.ListRefs("")
	require.NoError(t, err)
	require.Empty(t, refs, "no ref should be recorded when the pull aborts")

	require.Equal(t, before, countObjects(t, localDir), "aborted transaction must leave the local object store untouched")
}
